package models

import "time"

// DefaultLanguage is assumed wherever a language is missing.
const DefaultLanguage = "en"

// AssessmentStatus is derived: submitted iff a final submission exists.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "draft"
	AssessmentStatusSubmitted AssessmentStatus = "submitted"
)

// Valid reports whether s is a known status.
func (s AssessmentStatus) Valid() bool {
	return s == AssessmentStatusDraft || s == AssessmentStatusSubmitted
}

// Assessment is a questionnaire instance owned by one organization.
type Assessment struct {
	ID        string           `db:"id" json:"id"`
	OrgID     string           `db:"org_id" json:"orgId"`
	Language  string           `db:"language" json:"language"`
	Name      string           `db:"name" json:"name"`
	CreatedBy string           `db:"created_by" json:"createdBy"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
	Status    AssessmentStatus `db:"status" json:"status"`
}

// Submitted reports the derived state.
func (a *Assessment) Submitted() bool {
	return a != nil && a.Status == AssessmentStatusSubmitted
}

// AssessmentFilter constrains listings.
type AssessmentFilter struct {
	OrgID  string
	Status AssessmentStatus
	Limit  int
	Offset int
}

// AssessmentUpdate carries optional field changes.
type AssessmentUpdate struct {
	Name     *string
	Language *string
}

// AssessmentDetail is an assessment with its latest responses and their files.
type AssessmentDetail struct {
	Assessment
	Responses []ResponseWithFiles `json:"responses"`
}
