package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate key")
	// ErrReferenced reports a foreign key violation.
	ErrReferenced = errors.New("row is referenced or references a missing row")
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Classify maps driver errors onto ErrDuplicate / ErrReferenced, keeping the
// original error in the chain. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeUniqueViolation:
		return fmt.Errorf("%w (%s): %w", ErrDuplicate, pqErr.Constraint, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w (%s): %w", ErrReferenced, pqErr.Constraint, err)
	default:
		return err
	}
}
