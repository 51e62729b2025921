package dto

// CreateAssessmentRequest captures POST /assessments.
type CreateAssessmentRequest struct {
	OrgID    string `json:"orgId" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
	Name     string `json:"name" validate:"required,max=200"`
}

// UpdateAssessmentRequest captures PATCH /assessments/:id.
type UpdateAssessmentRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Language *string `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
}

// ResponseItem is one answer in a bulk create-or-replace request.
type ResponseItem struct {
	RevisionID string `json:"revisionId" validate:"required"`
	Text       string `json:"text" validate:"max=20000"`
}

// CreateResponsesRequest captures POST /assessments/:id/responses.
type CreateResponsesRequest struct {
	Responses []ResponseItem `json:"responses" validate:"required,min=1,dive"`
}

// UpdateResponseRequest captures PUT /responses/:id.
type UpdateResponseRequest struct {
	Text            string `json:"text" validate:"max=20000"`
	ExpectedVersion int    `json:"expectedVersion" validate:"required,min=1"`
}

// AttachFileRequest captures POST /responses/:id/files.
type AttachFileRequest struct {
	FileID string `json:"fileId" validate:"required"`
}
