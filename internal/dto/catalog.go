package dto

// CreateCategoryRequest captures POST /catalog/categories.
type CreateCategoryRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	TemplateID  string  `json:"templateId" validate:"required,max=120"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// UpdateCategoryRequest captures PATCH /catalog/categories/:id.
type UpdateCategoryRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	TemplateID  *string `json:"templateId,omitempty" validate:"omitempty,min=1,max=120"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// OrganizationCategoryItem is one elected category with its weight and display order.
type OrganizationCategoryItem struct {
	CatalogID string  `json:"catalogId" validate:"required"`
	Weight    float64 `json:"weight" validate:"gte=0,lte=100"`
	Order     int     `json:"order" validate:"gte=0"`
}

// AssignOrganizationCategoriesRequest replaces an organization's category set.
type AssignOrganizationCategoriesRequest struct {
	Items []OrganizationCategoryItem `json:"items" validate:"required,min=1,dive"`
}
