package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sustainability-assessment-api/internal/authz"
	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

type execer = sqlx.ExtContext

// permit runs the oracle and converts a denial into the error taxonomy.
func permit(p *models.Principal, op authz.Operation, target authz.Target) error {
	return authz.Permit(p, op, target).Err()
}

// lookupErr maps a repository read failure onto NOT_FOUND or INTERNAL_ERROR.
func lookupErr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}

// passThrough keeps typed errors raised inside a transaction and wraps anything else.
func passThrough(err error, internal string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "storage unavailable")
	}
	return appErrors.Internal(err, internal)
}

func invalid(err error) error {
	return appErrors.Wrap(err, appErrors.ErrBadInput.Code, appErrors.ErrBadInput.Status, "invalid payload")
}

func newValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return validator.New()
	}
	return v
}

func isDuplicate(err error) bool  { return errors.Is(err, database.ErrDuplicate) }
func isReferenced(err error) bool { return errors.Is(err, database.ErrReferenced) }

// assessmentTarget builds the oracle target for an assessment-scoped operation.
func assessmentTarget(a *models.Assessment, categories ...authz.CategoryRef) authz.Target {
	return authz.Target{OrgID: a.OrgID, Submitted: a.Submitted(), Categories: categories}
}
