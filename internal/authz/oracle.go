// Package authz decides whether a principal may perform an operation on a target.
// Decisions are pure functions of their inputs.
package authz

import (
	"strings"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

// Operation names an authorizable action.
type Operation string

const (
	CatalogRead       Operation = "catalog.read"
	CatalogWrite      Operation = "catalog.write"
	OrgCategoryAssign Operation = "org.category.assign"

	AssessmentCreate   Operation = "assessment.create"
	AssessmentRead     Operation = "assessment.read"
	AssessmentUpdate   Operation = "assessment.update"
	AssessmentDelete   Operation = "assessment.delete"
	AssessmentSubmit   Operation = "assessment.submit"
	AssessmentFinalize Operation = "assessment.finalize"

	ResponseRead   Operation = "response.read"
	ResponseWrite  Operation = "response.write"
	ResponseDelete Operation = "response.delete"

	FileUpload   Operation = "file.upload"
	FileDownload Operation = "file.download"
	FileDelete   Operation = "file.delete"
	FileAttach   Operation = "file.attach"
	FileDetach   Operation = "file.detach"

	SubmissionRead   Operation = "submission.read"
	SubmissionReview Operation = "submission.review"
	SubmissionDelete Operation = "submission.delete"

	ReportRead                 Operation = "report.read"
	ReportGenerate             Operation = "report.generate"
	ReportDelete               Operation = "report.delete"
	ReportRecommendationUpdate Operation = "report.recommendation.update"
)

// Target describes the entity an operation acts on.
type Target struct {
	OrgID string
	// Submitted marks an assessment that already has a final submission.
	Submitted bool
	// UploadedBy is the subject that uploaded a file target.
	UploadedBy string
	// FileReferenced marks a file with outstanding response links.
	FileReferenced bool
	// Categories the operation touches.
	Categories []CategoryRef
}

// CategoryRef identifies a catalog category. Claims may name it by id or by name.
type CategoryRef struct {
	ID   string
	Name string
}

// Reason explains a decision.
type Reason string

const (
	ReasonAllowed          Reason = "allowed"
	ReasonNoPrincipal      Reason = "no_principal"
	ReasonUnknownOperation Reason = "unknown_operation"
	ReasonNotMember        Reason = "not_member"
	ReasonRole             Reason = "insufficient_role"
	ReasonCategory         Reason = "category_not_permitted"
	ReasonFrozen           Reason = "assessment_submitted"
	ReasonFileReferenced   Reason = "file_referenced"
	ReasonNotUploader      Reason = "not_uploader"
)

// Decision is the outcome of Permit.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err maps a denial onto the error taxonomy. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonFrozen:
		return appErrors.ErrAlreadySubmitted
	case ReasonFileReferenced:
		return appErrors.ErrFileInUse
	case ReasonCategory:
		return appErrors.ErrCategoryNotPermitted
	default:
		return appErrors.ErrForbidden
	}
}

func allow() Decision        { return Decision{Allowed: true, Reason: ReasonAllowed} }
func deny(r Reason) Decision { return Decision{Reason: r} }

func when(ok bool, r Reason) Decision {
	if ok {
		return allow()
	}
	return deny(r)
}

// frozenOps may not touch an assessment once it is submitted.
var frozenOps = map[Operation]struct{}{
	AssessmentUpdate: {},
	AssessmentDelete: {},
	AssessmentSubmit: {},
	ResponseWrite:    {},
	ResponseDelete:   {},
	FileAttach:       {},
	FileDetach:       {},
}

// Permit decides whether p may perform op on t.
func Permit(p *models.Principal, op Operation, t Target) Decision {
	if p == nil || p.UserID == "" {
		return deny(ReasonNoPrincipal)
	}
	if !known(op) {
		return deny(ReasonUnknownOperation)
	}

	// Data invariants bind every caller, super users included.
	if _, ok := frozenOps[op]; ok && t.Submitted {
		return deny(ReasonFrozen)
	}
	if op == FileDelete && t.FileReferenced {
		return deny(ReasonFileReferenced)
	}

	if p.IsSuperUser {
		return allow()
	}

	switch op {
	case CatalogRead:
		return allow()
	case CatalogWrite:
		return deny(ReasonRole)
	}

	if !member(p, t.OrgID) {
		return deny(ReasonNotMember)
	}
	admin := isOrgAdmin(p, t.OrgID)

	switch op {
	case AssessmentRead, ResponseRead, FileDownload, FileUpload, FileAttach, FileDetach,
		SubmissionRead, ReportRead:
		return allow()
	case OrgCategoryAssign, AssessmentCreate, AssessmentUpdate, AssessmentDelete,
		AssessmentFinalize, ReportGenerate:
		return when(admin, ReasonRole)
	case AssessmentSubmit:
		if !p.HasOrgRole(t.OrgID, models.RoleOrganizationUser) && !p.HasOrgRole(t.OrgID, models.RoleDraftSubmitter) {
			return deny(ReasonRole)
		}
		return when(categoriesAllowed(p, t), ReasonCategory)
	case ResponseWrite, ResponseDelete:
		if admin {
			return allow()
		}
		return when(categoriesAllowed(p, t), ReasonCategory)
	case FileDelete:
		return when(t.UploadedBy != "" && t.UploadedBy == p.UserID, ReasonNotUploader)
	case SubmissionReview, SubmissionDelete, ReportDelete, ReportRecommendationUpdate:
		return when(p.IsApplicationAdmin, ReasonRole)
	}
	return deny(ReasonUnknownOperation)
}

func known(op Operation) bool {
	switch op {
	case CatalogRead, CatalogWrite, OrgCategoryAssign,
		AssessmentCreate, AssessmentRead, AssessmentUpdate, AssessmentDelete, AssessmentSubmit, AssessmentFinalize,
		ResponseRead, ResponseWrite, ResponseDelete,
		FileUpload, FileDownload, FileDelete, FileAttach, FileDetach,
		SubmissionRead, SubmissionReview, SubmissionDelete,
		ReportRead, ReportGenerate, ReportDelete, ReportRecommendationUpdate:
		return true
	}
	return false
}

// member treats application admins as members of every organization.
func member(p *models.Principal, orgID string) bool {
	if orgID == "" {
		return false
	}
	return p.IsApplicationAdmin || p.IsMember(orgID)
}

func isOrgAdmin(p *models.Principal, orgID string) bool {
	return p.IsApplicationAdmin || p.HasOrgRole(orgID, models.RoleOrganizationAdmin)
}

func categoriesAllowed(p *models.Principal, t Target) bool {
	allowed := p.Categories(t.OrgID)
	for _, c := range t.Categories {
		if !matches(allowed, c) {
			return false
		}
	}
	return true
}

func matches(allowed map[string]struct{}, c CategoryRef) bool {
	for _, k := range []string{c.ID, c.Name} {
		if k == "" {
			continue
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(k))]; ok {
			return true
		}
	}
	return false
}

// CategoryPermitted reports whether p may answer questions of category c in orgID.
func CategoryPermitted(p *models.Principal, orgID string, c CategoryRef) bool {
	return matches(p.Categories(orgID), c)
}
