package importer

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is the journal row recorded per import batch. Replayed windows are
// observable here even though the pipeline itself never deduplicates.
type Run struct {
	ID              string            `json:"id" gorm:"primaryKey;column:id"`
	Kind            string            `json:"kind" gorm:"column:kind"` // delta | instance
	Since           *time.Time        `json:"since,omitempty" gorm:"column:since"`
	InstanceID      string            `json:"instance_id,omitempty" gorm:"column:instance_id"`
	Status          string            `json:"status" gorm:"column:status"`
	SubmissionCount int               `json:"submission_count" gorm:"column:submission_count"`
	PartnerCount    int               `json:"partner_count" gorm:"column:partner_count"`
	Error           string            `json:"error,omitempty" gorm:"column:error"`
	Detail          datatypes.JSONMap `json:"detail,omitempty" gorm:"column:detail"`
	StartedAt       time.Time         `json:"started_at" gorm:"column:started_at"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty" gorm:"column:finished_at"`
}

func (Run) TableName() string {
	return "import_runs"
}

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Run{})
}

func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	run.StartedAt = time.Now().UTC()
	run.Status = RunStatusRunning
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *RunRepository) Finish(ctx context.Context, id, status string, submissions, partners int, errMsg string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Run{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"submission_count": submissions,
			"partner_count":    partners,
			"error":            errMsg,
			"finished_at":      now,
		}).Error
}

func (r *RunRepository) List(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := r.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}
