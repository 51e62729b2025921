package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sustainability-assessment-api/internal/models"
	appErrors "github.com/noah-isme/sustainability-assessment-api/pkg/errors"
)

func orgPrincipal(sub string, roles []string, categories ...string) *models.Principal {
	return &models.Principal{
		UserID: sub,
		Organizations: map[string]models.OrgMembership{
			"org-1": {Roles: roles, Categories: categories},
		},
	}
}

var (
	envCat    = CategoryRef{ID: "cat-env", Name: "Environmental"}
	socialCat = CategoryRef{ID: "cat-social", Name: "Social"}
)

func TestPermit(t *testing.T) {
	super := &models.Principal{UserID: "root", IsSuperUser: true}
	appAdmin := &models.Principal{UserID: "ops", IsApplicationAdmin: true}
	orgAdmin := orgPrincipal("admin", []string{models.RoleOrganizationAdmin})
	user := orgPrincipal("u1", []string{models.RoleOrganizationUser}, "environmental")
	submitter := orgPrincipal("s1", []string{models.RoleDraftSubmitter}, "cat-env")
	outsider := &models.Principal{UserID: "x", Organizations: map[string]models.OrgMembership{"org-2": {}}}

	org := Target{OrgID: "org-1"}
	frozen := Target{OrgID: "org-1", Submitted: true}

	cases := []struct {
		name      string
		principal *models.Principal
		op        Operation
		target    Target
		allowed   bool
		reason    Reason
	}{
		{"nil principal", nil, CatalogRead, Target{}, false, ReasonNoPrincipal},
		{"unknown operation", super, Operation("catalog.burn"), org, false, ReasonUnknownOperation},
		{"super user catalog write", super, CatalogWrite, Target{}, true, ReasonAllowed},
		{"super user any org", super, AssessmentDelete, Target{OrgID: "elsewhere"}, true, ReasonAllowed},
		{"app admin cannot write catalog", appAdmin, CatalogWrite, Target{}, false, ReasonRole},
		{"org admin cannot write catalog", orgAdmin, CatalogWrite, Target{}, false, ReasonRole},
		{"anyone reads catalog", user, CatalogRead, Target{}, true, ReasonAllowed},
		{"outsider denied", outsider, AssessmentRead, org, false, ReasonNotMember},
		{"empty org denied", user, AssessmentRead, Target{}, false, ReasonNotMember},
		{"member reads assessment", user, AssessmentRead, org, true, ReasonAllowed},
		{"member reads others responses", user, ResponseRead, org, true, ReasonAllowed},
		{"org admin creates", orgAdmin, AssessmentCreate, org, true, ReasonAllowed},
		{"user cannot create", user, AssessmentCreate, org, false, ReasonRole},
		{"app admin creates anywhere", appAdmin, AssessmentCreate, Target{OrgID: "org-9"}, true, ReasonAllowed},
		{"org admin assigns categories", orgAdmin, OrgCategoryAssign, org, true, ReasonAllowed},
		{"user cannot assign categories", user, OrgCategoryAssign, org, false, ReasonRole},
		{"user submits in category by name", user, AssessmentSubmit, Target{OrgID: "org-1", Categories: []CategoryRef{envCat}}, true, ReasonAllowed},
		{"user submit outside category", user, AssessmentSubmit, Target{OrgID: "org-1", Categories: []CategoryRef{envCat, socialCat}}, false, ReasonCategory},
		{"admin only cannot submit", orgAdmin, AssessmentSubmit, org, false, ReasonRole},
		{"capability submits by id", submitter, AssessmentSubmit, Target{OrgID: "org-1", Categories: []CategoryRef{envCat}}, true, ReasonAllowed},
		{"submit frozen", user, AssessmentSubmit, Target{OrgID: "org-1", Submitted: true}, false, ReasonFrozen},
		{"user writes own category", user, ResponseWrite, Target{OrgID: "org-1", Categories: []CategoryRef{envCat}}, true, ReasonAllowed},
		{"user writes foreign category", user, ResponseWrite, Target{OrgID: "org-1", Categories: []CategoryRef{socialCat}}, false, ReasonCategory},
		{"admin writes any category", orgAdmin, ResponseWrite, Target{OrgID: "org-1", Categories: []CategoryRef{socialCat}}, true, ReasonAllowed},
		{"frozen response write", orgAdmin, ResponseWrite, frozen, false, ReasonFrozen},
		{"frozen binds super user", super, ResponseDelete, frozen, false, ReasonFrozen},
		{"frozen assessment update", orgAdmin, AssessmentUpdate, frozen, false, ReasonFrozen},
		{"frozen attach", user, FileAttach, frozen, false, ReasonFrozen},
		{"frozen detach", user, FileDetach, frozen, false, ReasonFrozen},
		{"finalize is not freeze gated", orgAdmin, AssessmentFinalize, frozen, true, ReasonAllowed},
		{"user cannot finalize", user, AssessmentFinalize, org, false, ReasonRole},
		{"frozen read allowed", user, AssessmentRead, frozen, true, ReasonAllowed},
		{"uploader deletes file", user, FileDelete, Target{OrgID: "org-1", UploadedBy: "u1"}, true, ReasonAllowed},
		{"non uploader cannot delete", orgAdmin, FileDelete, Target{OrgID: "org-1", UploadedBy: "u1"}, false, ReasonNotUploader},
		{"referenced file", user, FileDelete, Target{OrgID: "org-1", UploadedBy: "u1", FileReferenced: true}, false, ReasonFileReferenced},
		{"referenced binds super user", super, FileDelete, Target{OrgID: "org-1", FileReferenced: true}, false, ReasonFileReferenced},
		{"app admin reviews", appAdmin, SubmissionReview, org, true, ReasonAllowed},
		{"org admin cannot review", orgAdmin, SubmissionReview, org, false, ReasonRole},
		{"org admin reads submission", orgAdmin, SubmissionRead, org, true, ReasonAllowed},
		{"org admin generates report", orgAdmin, ReportGenerate, org, true, ReasonAllowed},
		{"user cannot generate report", user, ReportGenerate, org, false, ReasonRole},
		{"outsider cannot read report", outsider, ReportRead, org, false, ReasonNotMember},
		{"app admin updates recommendation", appAdmin, ReportRecommendationUpdate, org, true, ReasonAllowed},
		{"org admin cannot delete submission", orgAdmin, SubmissionDelete, org, false, ReasonRole},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Permit(tc.principal, tc.op, tc.target)
			assert.Equal(t, tc.allowed, got.Allowed)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}

func TestPermitDeterministic(t *testing.T) {
	p := orgPrincipal("u1", []string{models.RoleOrganizationUser}, "env")
	target := Target{OrgID: "org-1", Categories: []CategoryRef{{ID: "env"}}}
	first := Permit(p, AssessmentSubmit, target)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Permit(p, AssessmentSubmit, target))
	}
	assert.Equal(t, []string{"env"}, p.Organizations["org-1"].Categories, "inputs must not be mutated")
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, allow().Err())
	assert.ErrorIs(t, deny(ReasonFrozen).Err(), appErrors.ErrInvariant)
	assert.Equal(t, "assessment already submitted", appErrors.FromError(deny(ReasonFrozen).Err()).Message)
	assert.ErrorIs(t, deny(ReasonFileReferenced).Err(), appErrors.ErrInvariant)
	assert.ErrorIs(t, deny(ReasonCategory).Err(), appErrors.ErrForbidden)
	assert.Equal(t, "category not permitted", appErrors.FromError(deny(ReasonCategory).Err()).Message)
	assert.ErrorIs(t, deny(ReasonNotMember).Err(), appErrors.ErrForbidden)
}

func TestCategoryPermitted(t *testing.T) {
	p := orgPrincipal("u1", []string{models.RoleOrganizationUser}, "ENVIRONMENTAL")
	assert.True(t, CategoryPermitted(p, "org-1", envCat))
	assert.False(t, CategoryPermitted(p, "org-1", socialCat))
	assert.False(t, CategoryPermitted(p, "org-2", envCat))
}
