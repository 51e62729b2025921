package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LocalizedText maps a language code to display text.
type LocalizedText map[string]string

// Value implements driver.Valuer for JSONB storage.
func (t LocalizedText) Value() (driver.Value, error) {
	if t == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *LocalizedText) Scan(value interface{}) error {
	if value == nil {
		*t = LocalizedText{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported localized text type %T", value)
	}
	out := LocalizedText{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*t = out
	return nil
}

// Pick returns the text for lang, falling back to English and then any entry.
func (t LocalizedText) Pick(lang string) string {
	if v, ok := t[lang]; ok {
		return v
	}
	if v, ok := t[DefaultLanguage]; ok {
		return v
	}
	for _, v := range t {
		return v
	}
	return ""
}

// Question is a stable question identity. Its category may change over time.
type Question struct {
	ID         string    `db:"id" json:"id"`
	CategoryID string    `db:"category_id" json:"categoryId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// QuestionRevision is an immutable snapshot of a question's text and weight.
type QuestionRevision struct {
	ID         string        `db:"id" json:"id"`
	QuestionID string        `db:"question_id" json:"questionId"`
	Text       LocalizedText `db:"text" json:"text"`
	Weight     float64       `db:"weight" json:"weight"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}

// QuestionWithRevision pairs a question with one of its revisions.
type QuestionWithRevision struct {
	Question
	CategoryName string            `db:"category_name" json:"categoryName"`
	Revision     *QuestionRevision `db:"-" json:"revision"`
}

// QuestionFilter constrains catalog listings.
type QuestionFilter struct {
	CategoryID string
	Limit      int
	Offset     int
}

// RevisionCategory resolves a revision to the category of its question.
type RevisionCategory struct {
	RevisionID   string `db:"revision_id"`
	QuestionID   string `db:"question_id"`
	CategoryID   string `db:"category_id"`
	CategoryName string `db:"category_name"`
}
