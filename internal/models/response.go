package models

import "time"

// Response is one versioned answer to a question revision within an assessment.
// Rows are append-only; the latest per (assessment, revision) has the greatest version.
type Response struct {
	ID           string    `db:"id" json:"id"`
	AssessmentID string    `db:"assessment_id" json:"assessmentId"`
	RevisionID   string    `db:"revision_id" json:"revisionId"`
	Text         string    `db:"text" json:"text"`
	Version      int       `db:"version" json:"version"`
	CreatedBy    string    `db:"created_by" json:"createdBy"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ResponseWithFiles bundles a response with its linked file metadata.
type ResponseWithFiles struct {
	Response
	Files []File `json:"files"`
}

// ResponseInput is one element of a bulk create-or-replace request.
type ResponseInput struct {
	RevisionID string
	Text       string
}

// ResponseFile links a response to an evidence file.
type ResponseFile struct {
	ResponseID string    `db:"response_id" json:"responseId"`
	FileID     string    `db:"file_id" json:"fileId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
