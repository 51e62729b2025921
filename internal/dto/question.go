package dto

// CreateQuestionRequest captures POST /questions.
type CreateQuestionRequest struct {
	CategoryID string            `json:"categoryId" validate:"required"`
	Text       map[string]string `json:"text" validate:"required,min=1,dive,keys,min=2,max=8,endkeys,required"`
	Weight     float64           `json:"weight" validate:"gte=0"`
}

// UpdateQuestionRequest captures PUT /questions/:id; it always produces a new revision.
type UpdateQuestionRequest struct {
	CategoryID *string           `json:"categoryId,omitempty" validate:"omitempty,min=1"`
	Text       map[string]string `json:"text" validate:"required,min=1,dive,keys,min=2,max=8,endkeys,required"`
	Weight     float64           `json:"weight" validate:"gte=0"`
}
