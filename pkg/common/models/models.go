package models

import (
	"time"
)

// Raw submission payload pulled from ODK Central. Keys are form-defined;
// meta.instanceID and __system/submissionDate are the only fields the
// pipeline itself relies on.
type Submission map[string]interface{}

// InstanceID returns meta.instanceID, or "" when the submission carries no
// usable meta block.
func (s Submission) InstanceID() string {
	meta, ok := s["meta"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := meta["instanceID"].(string)
	return id
}

// SubmissionTime returns the raw submission_time value, "" when absent.
func (s Submission) SubmissionTime() string {
	v, _ := s["submission_time"].(string)
	return v
}

// SubmissionPage is the OData response shape of the Submissions endpoint.
type SubmissionPage struct {
	Value []Submission `json:"value"`
	Count int          `json:"@odata.count"`
}

// Attachment metadata as listed by the attachments endpoint.
type AttachmentInfo struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// ImportResult echoes the processed submissions plus a batch summary,
// returned to the caller of a delta or instance import.
type ImportResult struct {
	Value        []Submission `json:"value"`
	Count        int          `json:"@odata.count,omitempty"`
	FormUpdated  bool         `json:"form_updated"`
	PartnerCount int          `json:"partner_count"`
}

// ImportDeltaRequest triggers a batch import over the HTTP surface.
type ImportDeltaRequest struct {
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp,omitempty"`
	Skip              int        `json:"skip,omitempty"`
	// ResumeCursor pulls the since-timestamp from the stored delta cursor
	// when no explicit timestamp is given.
	ResumeCursor bool `json:"resume_cursor,omitempty"`
}

// Event is the bus envelope published after commits.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // registrant.created, import.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// RegistrantSummary is the thin read model served by the verification
// endpoints.
type RegistrantSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	IsGroup    bool      `json:"is_group"`
	GivenName  string    `json:"given_name,omitempty"`
	FamilyName string    `json:"family_name,omitempty"`
	Birthdate  string    `json:"birthdate,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
