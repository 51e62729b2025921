package models

import "strings"

// Role names as they appear in IdP claims.
const (
	RoleSuperUser         = "super_user"
	RoleApplicationAdmin  = "application_admin"
	RoleOrganizationAdmin = "organization_admin"
	RoleOrganizationUser  = "organization_user"
	// RoleDraftSubmitter grants draft submission to non-user roles within an org.
	RoleDraftSubmitter = "draft_submitter"
)

// OrgMembership is one entry of the "organizations" claim.
type OrgMembership struct {
	Name       string   `json:"name,omitempty"`
	Roles      []string `json:"roles"`
	Categories []string `json:"categories"`
}

// Principal is the validated authorization subject derived from a bearer token.
type Principal struct {
	UserID             string                   `json:"sub"`
	Username           string                   `json:"preferredUsername"`
	Email              string                   `json:"email,omitempty"`
	Organizations      map[string]OrgMembership `json:"organizations"`
	RealmRoles         []string                 `json:"realmRoles,omitempty"`
	IsSuperUser        bool                     `json:"isSuperUser"`
	IsApplicationAdmin bool                     `json:"isApplicationAdmin"`
}

// IsMember reports whether the principal belongs to orgID.
func (p *Principal) IsMember(orgID string) bool {
	if p == nil || orgID == "" {
		return false
	}
	_, ok := p.Organizations[orgID]
	return ok
}

// HasOrgRole reports whether the principal holds role within orgID.
func (p *Principal) HasOrgRole(orgID, role string) bool {
	if !p.IsMember(orgID) {
		return false
	}
	for _, r := range p.Organizations[orgID].Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Categories returns the principal's allowed categories within orgID, lower-cased.
func (p *Principal) Categories(orgID string) map[string]struct{} {
	out := map[string]struct{}{}
	if !p.IsMember(orgID) {
		return out
	}
	for _, c := range p.Organizations[orgID].Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out[c] = struct{}{}
		}
	}
	return out
}

// OrgIDs lists the organizations the principal belongs to.
func (p *Principal) OrgIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Organizations))
	for id := range p.Organizations {
		ids = append(ids, id)
	}
	return ids
}

// IsPlatformAdmin covers both cross-organization roles.
func (p *Principal) IsPlatformAdmin() bool {
	return p != nil && (p.IsSuperUser || p.IsApplicationAdmin)
}
