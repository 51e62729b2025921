package models

import "time"

// CategoryCatalog is a platform-wide category offered to organizations.
type CategoryCatalog struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	TemplateID  string    `db:"template_id" json:"templateId"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// OrganizationCategory records an organization's election of a catalog category.
type OrganizationCategory struct {
	ID           string    `db:"id" json:"id"`
	OrgID        string    `db:"org_id" json:"orgId"`
	CatalogID    string    `db:"catalog_id" json:"catalogId"`
	Weight       float64   `db:"weight" json:"weight"`
	SortOrder    int       `db:"sort_order" json:"order"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
	CategoryName string    `db:"category_name" json:"categoryName,omitempty"`
}
