package odk

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/common/models"
)

// submissionDateFormat is the 'Z'-suffixed millisecond form the OData
// $filter clause expects.
const submissionDateFormat = "2006-01-02T15:04:05.000Z"

// FetchDelta retrieves one page of submissions, optionally filtered to those
// submitted at or after since, ordered by ascending submission_time with
// untimestamped entries last. Returns the submissions and the server-side
// total count.
func (c *Client) FetchDelta(ctx context.Context, since *time.Time, skip int) ([]models.Submission, int, error) {
	params := map[string]string{
		"$skip":   strconv.Itoa(skip),
		"$count":  "true",
		"$expand": "*",
	}
	if since != nil {
		params["$filter"] = "__system/submissionDate ge " + since.UTC().Format(submissionDateFormat)
	}

	var page models.SubmissionPage
	if err := c.getJSON(ctx, c.svcURL(), params, &page); err != nil {
		logger.Log.WithError(err).Error("Failed to fetch delta submissions")
		return nil, 0, FetchError{reason: err}
	}

	SortBySubmissionTime(page.Value)
	return page.Value, page.Count, nil
}

// FetchByInstanceID retrieves the submissions matching one instance id. The
// API keeps the sequence shape, so zero or more entries may come back.
func (c *Client) FetchByInstanceID(ctx context.Context, instanceID string) ([]models.Submission, error) {
	url := fmt.Sprintf("%s('%s')", c.svcURL(), instanceID)
	params := map[string]string{
		"$skip":   "0",
		"$count":  "true",
		"$expand": "*",
	}

	var page models.SubmissionPage
	if err := c.getJSON(ctx, url, params, &page); err != nil {
		logger.Log.WithError(err).WithField("instance_id", instanceID).Error("Failed to fetch submission by instance id")
		return nil, FetchError{reason: err}
	}

	return page.Value, nil
}

// FetchAll retrieves submissions with an optional field selector and since
// filter. Only the first page is fetched: ODK Central signals continuation
// through @odata.nextLink, which this client does not follow yet.
// TODO: follow @odata.nextLink instead of stopping after one page.
func (c *Client) FetchAll(ctx context.Context, fieldSelector string, since *time.Time) ([]models.Submission, error) {
	params := map[string]string{}
	if fieldSelector != "" {
		params["$select"] = fieldSelector
	}
	if since != nil {
		params["$filter"] = "__system/submissionDate ge " + since.UTC().Format(submissionDateFormat)
	}

	var page models.SubmissionPage
	if err := c.getJSON(ctx, c.svcURL(), params, &page); err != nil {
		logger.Log.WithError(err).Error("Failed to fetch submissions")
		return nil, FetchError{reason: err}
	}

	return page.Value, nil
}

// SortBySubmissionTime orders submissions by ascending submission_time.
// Entries whose timestamp is missing or unparseable sort after all
// timestamped entries, keeping their relative input order.
func SortBySubmissionTime(subs []models.Submission) {
	type key struct {
		invalid bool
		at      time.Time
	}
	keys := make([]key, len(subs))
	for i, s := range subs {
		raw := s.SubmissionTime()
		if raw == "" {
			keys[i] = key{invalid: true}
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			keys[i] = key{invalid: true}
			continue
		}
		keys[i] = key{at: at}
	}

	idx := make([]int, len(subs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.invalid != kb.invalid {
			return !ka.invalid
		}
		if ka.invalid {
			return false
		}
		return ka.at.Before(kb.at)
	})

	sorted := make([]models.Submission, len(subs))
	for i, j := range idx {
		sorted[i] = subs[j]
	}
	copy(subs, sorted)
}
