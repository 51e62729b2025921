package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FileMetadata is the free-form metadata document stored with each file.
type FileMetadata struct {
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
	UploadedBy  string            `json:"uploaded_by"`
	Checksum    string            `json:"checksum,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Value implements driver.Valuer.
func (m FileMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *FileMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = FileMetadata{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported file metadata type %T", value)
	}
}

// File is an uploaded evidence blob owned by an organization.
type File struct {
	ID          string       `db:"id" json:"id"`
	OrgID       string       `db:"org_id" json:"orgId"`
	StoragePath string       `db:"storage_path" json:"-"`
	Metadata    FileMetadata `db:"metadata" json:"metadata"`
}

// LinkedFile is a file row joined with the response it is attached to.
type LinkedFile struct {
	File
	ResponseID string `db:"response_id"`
}
