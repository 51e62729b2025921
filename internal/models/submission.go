package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReviewStatus is the review state shared by draft and final submissions.
type ReviewStatus string

const (
	ReviewStatusUnderReview       ReviewStatus = "under_review"
	ReviewStatusApproved          ReviewStatus = "approved"
	ReviewStatusRejected          ReviewStatus = "rejected"
	ReviewStatusRevisionRequested ReviewStatus = "revision_requested"
)

// Valid reports whether s is a known review state.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusUnderReview, ReviewStatusApproved, ReviewStatusRejected, ReviewStatusRevisionRequested:
		return true
	}
	return false
}

// Reviewed reports whether s carries a review timestamp.
func (s ReviewStatus) Reviewed() bool {
	return s.Valid() && s != ReviewStatusUnderReview
}

// ContentAssessment is the assessment header embedded in a content document.
type ContentAssessment struct {
	ID       string `json:"id"`
	OrgID    string `json:"org_id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// ContentFile is a by-value snapshot of a linked file.
type ContentFile struct {
	FileID      string            `json:"file_id"`
	Filename    string            `json:"filename"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ContentResponse is one user's contribution for one revision.
type ContentResponse struct {
	RevisionID string        `json:"revision_id"`
	Response   string        `json:"response"`
	Version    int           `json:"version"`
	UserID     string        `json:"user_id"`
	Files      []ContentFile `json:"files"`
}

// SubmissionContent is the schemaless document persisted with submissions.
type SubmissionContent struct {
	Assessment ContentAssessment `json:"assessment"`
	Responses  []ContentResponse `json:"responses"`
}

// Normalize applies the read defaults for fields older documents may lack.
func (c *SubmissionContent) Normalize() {
	if c.Assessment.Language == "" {
		c.Assessment.Language = DefaultLanguage
	}
	if c.Responses == nil {
		c.Responses = []ContentResponse{}
	}
	for i := range c.Responses {
		if c.Responses[i].Files == nil {
			c.Responses[i].Files = []ContentFile{}
		}
		if c.Responses[i].Version <= 0 {
			c.Responses[i].Version = 1
		}
	}
}

// Merge replaces entries colliding on (user_id, revision_id) with incoming and appends the rest.
func (c *SubmissionContent) Merge(incoming []ContentResponse) {
	type key struct{ user, revision string }
	replaced := make(map[key]struct{}, len(incoming))
	for _, r := range incoming {
		replaced[key{r.UserID, r.RevisionID}] = struct{}{}
	}
	kept := make([]ContentResponse, 0, len(c.Responses)+len(incoming))
	for _, r := range c.Responses {
		if _, ok := replaced[key{r.UserID, r.RevisionID}]; ok {
			continue
		}
		kept = append(kept, r)
	}
	c.Responses = append(kept, incoming...)
}

// Value implements driver.Valuer.
func (c SubmissionContent) Value() (driver.Value, error) {
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal submission content: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner and applies read defaults.
func (c *SubmissionContent) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SubmissionContent", value)
	}
	out := SubmissionContent{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal submission content: %w", err)
		}
	}
	out.Normalize()
	*c = out
	return nil
}

// TempSubmission is the in-progress merged draft for an assessment.
type TempSubmission struct {
	AssessmentID string            `db:"assessment_id" json:"assessmentId"`
	OrgID        string            `db:"org_id" json:"orgId"`
	Content      SubmissionContent `db:"content" json:"content"`
	SubmittedAt  time.Time         `db:"submitted_at" json:"submittedAt"`
	Status       ReviewStatus      `db:"status" json:"status"`
	ReviewedAt   *time.Time        `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// AssessmentSubmission is the frozen organization-level submission.
type AssessmentSubmission struct {
	SubmissionID string            `db:"submission_id" json:"submissionId"`
	OrgID        string            `db:"org_id" json:"orgId"`
	Content      SubmissionContent `db:"content" json:"content"`
	SubmittedAt  time.Time         `db:"submitted_at" json:"submittedAt"`
	Status       ReviewStatus      `db:"status" json:"status"`
	ReviewedAt   *time.Time        `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// SubmissionFilter constrains submission listings.
type SubmissionFilter struct {
	OrgIDs []string
	Status ReviewStatus
	Limit  int
	Offset int
}

// ApplyReview returns the reviewed_at value that accompanies status.
func ApplyReview(status ReviewStatus, now time.Time) *time.Time {
	if !status.Reviewed() {
		return nil
	}
	t := now.UTC()
	return &t
}
