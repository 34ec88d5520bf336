package access

import "time"

// RoleAssignment grants a role to a user, optionally scoped to a
// project and/or site, carrying the permissions attached to the grant.
// A ProjectID or SiteID of zero means the assignment is unscoped on
// that axis.
type RoleAssignment struct {
	ID          string       `json:"id"`
	Role        Role         `json:"roleName"`
	ProjectID   int64        `json:"projectId,omitempty"`
	SiteID      int64        `json:"siteId,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	Active      bool         `json:"isActive"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
}

// ActiveAt reports whether the assignment contributes to resolution at
// the given instant.
func (a RoleAssignment) ActiveAt(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}

// scopedTo reports whether the assignment matches the requested
// project/site narrowing. A zero request value means "any"; an
// unscoped assignment covers any requested value.
func (a RoleAssignment) scopedTo(projectID, siteID int64) bool {
	if projectID != 0 && a.ProjectID != 0 && a.ProjectID != projectID {
		return false
	}
	if siteID != 0 && a.SiteID != 0 && a.SiteID != siteID {
		return false
	}
	return true
}
