package importer

import (
	"context"
	"time"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/civicbridge/platform/pkg/mapper"
	"github.com/civicbridge/platform/pkg/odk"
	"github.com/civicbridge/platform/pkg/registry"
	"github.com/google/uuid"
)

// EventPublisher is the outbound notification hook fired after commits.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Service runs the delta-import pipeline: fetch, map, expand, import media,
// commit. Submissions are processed strictly one at a time; the first
// failure aborts the batch with whatever was committed so far left in
// place.
type Service struct {
	client   *odk.Client
	mapper   *mapper.Mapper
	expander *Expander
	media    *MediaImporter
	sink     registry.Sink

	formID   string
	runs     *RunRepository // optional
	producer EventPublisher // optional
	cursor   *CursorStore   // optional
}

func NewService(client *odk.Client, m *mapper.Mapper, expander *Expander, media *MediaImporter, sink registry.Sink, formID string) *Service {
	return &Service{
		client:   client,
		mapper:   m,
		expander: expander,
		media:    media,
		sink:     sink,
		formID:   formID,
	}
}

// WithRunJournal records a Run row per batch.
func (s *Service) WithRunJournal(runs *RunRepository) *Service {
	s.runs = runs
	return s
}

// WithEvents publishes import.completed and registrant.created events.
func (s *Service) WithEvents(producer EventPublisher) *Service {
	s.producer = producer
	return s
}

// WithCursor stores the last successful sync timestamp after delta batches.
func (s *Service) WithCursor(cursor *CursorStore) *Service {
	s.cursor = cursor
	return s
}

// LastCursor returns the stored delta cursor, nil when no cursor store is
// configured or nothing has been stored yet.
func (s *Service) LastCursor(ctx context.Context) (*time.Time, error) {
	if s.cursor == nil {
		return nil, nil
	}
	return s.cursor.Last(ctx)
}

// TestConnection logs in and verifies the session.
func (s *Service) TestConnection(ctx context.Context) (odk.User, error) {
	if !s.client.LoggedIn() {
		if err := s.client.Login(ctx); err != nil {
			return odk.User{}, err
		}
	}
	return s.client.CurrentUser(ctx)
}

// ImportDelta fetches submissions at or after since (all when nil) and runs
// each through the pipeline. The result echoes the ordered submissions plus
// the batch summary.
func (s *Service) ImportDelta(ctx context.Context, since *time.Time, skip int) (*models.ImportResult, error) {
	batchStart := time.Now().UTC()

	runID := s.startRun(ctx, &Run{ID: uuid.New().String(), Kind: "delta", Since: since})

	if err := s.ensureSession(ctx); err != nil {
		s.finishRun(ctx, runID, RunStatusFailed, 0, 0, err)
		return nil, err
	}

	subs, count, err := s.client.FetchDelta(ctx, since, skip)
	if err != nil {
		s.finishRun(ctx, runID, RunStatusFailed, 0, 0, err)
		return nil, err
	}

	partnerCount := 0
	for _, sub := range subs {
		if err := s.processSubmission(ctx, sub); err != nil {
			s.finishRun(ctx, runID, RunStatusFailed, len(subs), partnerCount, err)
			return nil, err
		}
		partnerCount++
	}

	result := &models.ImportResult{
		Value:        subs,
		Count:        count,
		FormUpdated:  partnerCount > 0,
		PartnerCount: partnerCount,
	}

	s.finishRun(ctx, runID, RunStatusCompleted, len(subs), partnerCount, nil)

	if s.cursor != nil {
		if err := s.cursor.Set(ctx, batchStart); err != nil {
			logger.Log.WithError(err).Warn("failed to store delta cursor")
		}
	}

	s.publish(ctx, "import.completed", map[string]interface{}{
		"partner_count":    partnerCount,
		"submission_count": len(subs),
		"since":            since,
	})

	logger.Log.WithFields(map[string]interface{}{
		"form_id":       s.formID,
		"partner_count": partnerCount,
	}).Info("Delta import completed")

	return result, nil
}

// ImportByInstanceID imports the submissions matching one instance id.
func (s *Service) ImportByInstanceID(ctx context.Context, instanceID string) (*models.ImportResult, error) {
	runID := s.startRun(ctx, &Run{ID: uuid.New().String(), Kind: "instance", InstanceID: instanceID})

	if err := s.ensureSession(ctx); err != nil {
		s.finishRun(ctx, runID, RunStatusFailed, 0, 0, err)
		return nil, err
	}

	subs, err := s.client.FetchByInstanceID(ctx, instanceID)
	if err != nil {
		s.finishRun(ctx, runID, RunStatusFailed, 0, 0, err)
		return nil, err
	}

	logger.Log.WithField("instance_id", instanceID).Debug("fetched submissions by instance id")

	partnerCount := 0
	for _, sub := range subs {
		if err := s.processSubmission(ctx, sub); err != nil {
			s.finishRun(ctx, runID, RunStatusFailed, len(subs), partnerCount, err)
			return nil, err
		}
		partnerCount++
	}

	s.finishRun(ctx, runID, RunStatusCompleted, len(subs), partnerCount, nil)

	s.publish(ctx, "import.completed", map[string]interface{}{
		"partner_count": partnerCount,
		"instance_id":   instanceID,
	})

	return &models.ImportResult{
		Value:        subs,
		FormUpdated:  true,
		PartnerCount: partnerCount,
	}, nil
}

// ListRuns exposes the journal.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.List(ctx, limit)
}

func (s *Service) processSubmission(ctx context.Context, sub models.Submission) error {
	logger.Log.WithField("raw", map[string]interface{}(sub)).Debug("ODK raw submission")

	record, err := s.mapper.Map(sub)
	if err != nil {
		return err
	}

	if err := s.expander.Expand(ctx, record); err != nil {
		return err
	}

	if err := s.media.Import(ctx, sub, record); err != nil {
		return err
	}

	id, err := s.sink.CreateRegistrant(ctx, record)
	if err != nil {
		return err
	}

	s.publish(ctx, "registrant.created", map[string]interface{}{
		"registrant_id": id,
		"instance_id":   sub.InstanceID(),
		"is_group":      record["is_group"],
	})

	return nil
}

func (s *Service) ensureSession(ctx context.Context) error {
	if s.client.LoggedIn() {
		return nil
	}
	return s.client.Login(ctx)
}

func (s *Service) startRun(ctx context.Context, run *Run) string {
	if s.runs == nil {
		return ""
	}
	if err := s.runs.Create(ctx, run); err != nil {
		logger.Log.WithError(err).Warn("failed to record import run")
		return ""
	}
	return run.ID
}

func (s *Service) finishRun(ctx context.Context, id, status string, submissions, partners int, runErr error) {
	if s.runs == nil || id == "" {
		return
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := s.runs.Finish(ctx, id, status, submissions, partners, errMsg); err != nil {
		logger.Log.WithError(err).Warn("failed to finalize import run")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishEvent(ctx, eventType, s.formID, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish import event")
	}
}
