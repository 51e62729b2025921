package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionContentScanDefaults(t *testing.T) {
	var c SubmissionContent
	require.NoError(t, c.Scan([]byte(`{"assessment":{"id":"a1"},"responses":[{"revision_id":"r1","response":"x","user_id":"u1"}]}`)))

	assert.Equal(t, "en", c.Assessment.Language)
	require.Len(t, c.Responses, 1)
	assert.Equal(t, 1, c.Responses[0].Version)
	assert.NotNil(t, c.Responses[0].Files)
	assert.Empty(t, c.Responses[0].Files)
}

func TestSubmissionContentScanNull(t *testing.T) {
	var c SubmissionContent
	require.NoError(t, c.Scan(nil))
	assert.NotNil(t, c.Responses)
	assert.Equal(t, "en", c.Assessment.Language)
}

func TestSubmissionContentMergeReplacesByUserAndRevision(t *testing.T) {
	c := SubmissionContent{Responses: []ContentResponse{
		{RevisionID: "q", UserID: "u1", Response: "u1-first"},
		{RevisionID: "q", UserID: "u2", Response: "u2-first"},
		{RevisionID: "other", UserID: "u1", Response: "kept"},
	}}

	c.Merge([]ContentResponse{{RevisionID: "q", UserID: "u1", Response: "u1-second"}})

	require.Len(t, c.Responses, 3)
	byUser := map[string]string{}
	for _, r := range c.Responses {
		if r.RevisionID == "q" {
			byUser[r.UserID] = r.Response
		}
	}
	assert.Equal(t, "u1-second", byUser["u1"])
	assert.Equal(t, "u2-first", byUser["u2"])
	assert.Equal(t, "kept", c.Responses[1].Response)
}

func TestApplyReview(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Nil(t, ApplyReview(ReviewStatusUnderReview, now))
	got := ApplyReview(ReviewStatusApproved, now)
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))
	assert.False(t, ReviewStatus("bogus").Valid())
}

func TestPrincipalCategoriesCaseInsensitive(t *testing.T) {
	p := &Principal{Organizations: map[string]OrgMembership{
		"org": {Roles: []string{"Organization_User"}, Categories: []string{" Env ", ""}},
	}}
	assert.True(t, p.HasOrgRole("org", RoleOrganizationUser))
	assert.False(t, p.HasOrgRole("other", RoleOrganizationUser))
	assert.Equal(t, map[string]struct{}{"env": {}}, p.Categories("org"))
	assert.Empty(t, p.Categories("other"))
}

func TestLocalizedTextPick(t *testing.T) {
	text := LocalizedText{"en": "Energy", "id": "Energi"}
	assert.Equal(t, "Energi", text.Pick("id"))
	assert.Equal(t, "Energy", text.Pick("fr"))
	assert.Equal(t, "", LocalizedText{}.Pick("en"))
}
