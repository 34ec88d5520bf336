package access

import "time"

// Resolver answers role and permission queries for one user's
// assignment set under a single current portal. It is a pure in-memory
// matcher; derived sets are recomputed on every call, never stored.
type Resolver struct {
	assignments []RoleAssignment
	portal      Role
	now         func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithClock overrides the time source used for expiry checks.
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver builds a resolver over the assignment set. portal is the
// active portal the UI is rendered under; it may be empty when the
// user has not entered a portal yet.
func NewResolver(assignments []RoleAssignment, portal Role, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		assignments: assignments,
		portal:      portal,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Portal returns the portal the resolver was built for.
func (r *Resolver) Portal() Role { return r.portal }

func (r *Resolver) active() []RoleAssignment {
	now := r.now()
	out := make([]RoleAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		if a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	return out
}

// Query narrows a role or permission check to a project and/or site.
type Query struct {
	ProjectID int64
	SiteID    int64
}

// QueryOption narrows HasRole/HasPermission checks.
type QueryOption func(*Query)

// InProject restricts the check to assignments covering the project.
func InProject(id int64) QueryOption {
	return func(q *Query) { q.ProjectID = id }
}

// AtSite restricts the check to assignments covering the site.
func AtSite(id int64) QueryOption {
	return func(q *Query) { q.SiteID = id }
}

func buildQuery(opts []QueryOption) Query {
	var q Query
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// HasRole reports whether any active assignment matches the role and,
// when narrowed, the project/site scoping.
func (r *Resolver) HasRole(role Role, opts ...QueryOption) bool {
	q := buildQuery(opts)
	for _, a := range r.active() {
		if a.Role != role {
			continue
		}
		if a.scopedTo(q.ProjectID, q.SiteID) {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether any active assignment carries the
// SUPER_ADMIN role, which short-circuits every permission check.
func (r *Resolver) IsSuperAdmin() bool {
	return r.HasRole(RoleSuperAdmin)
}

// HasPermission reports whether the current user may perform action on
// resource. SUPER_ADMIN is an implicit wildcard over every pair.
// Otherwise only assignments for the current portal are consulted, so a
// FUNDER grant never leaks into the CUSTOMER portal context.
func (r *Resolver) HasPermission(resource, action string, opts ...QueryOption) bool {
	if r.IsSuperAdmin() {
		return true
	}
	if r.portal == "" {
		return false
	}
	q := buildQuery(opts)
	projects := r.AccessibleProjects()
	sites := r.AccessibleSites()
	for _, a := range r.active() {
		if a.Role != r.portal {
			continue
		}
		if !a.scopedTo(q.ProjectID, q.SiteID) {
			continue
		}
		for _, p := range a.Permissions {
			if !p.matches(resource, action) {
				continue
			}
			if r.scopeSatisfied(p.Scope, a, projects, sites) {
				return true
			}
		}
	}
	return false
}

// scopeSatisfied evaluates the scope qualifier against the assignment
// that carries the permission.
func (r *Resolver) scopeSatisfied(scope Scope, a RoleAssignment, projects, sites []int64) bool {
	switch scope {
	case ScopeAll, "":
		return true
	case ScopeOwn:
		// Ownership filtering happens server-side; this is a coarse gate.
		return true
	case ScopeFunded:
		return a.ProjectID != 0 && containsID(projects, a.ProjectID)
	case ScopeContracted:
		return a.SiteID != 0 && containsID(sites, a.SiteID)
	}
	return false
}

// AccessiblePortals returns the distinct role names across active
// assignments in first-seen order.
func (r *Resolver) AccessiblePortals() []Role {
	seen := make(map[Role]struct{}, 4)
	var portals []Role
	for _, a := range r.active() {
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		portals = append(portals, a.Role)
	}
	return portals
}

// CanEnter reports whether the role is in the accessible-portals set.
func (r *Resolver) CanEnter(role Role) bool {
	for _, p := range r.AccessiblePortals() {
		if p == role {
			return true
		}
	}
	return false
}

// AccessibleProjects returns the distinct non-zero project ids across
// all active assignments.
func (r *Resolver) AccessibleProjects() []int64 {
	return distinctIDs(r.active(), func(a RoleAssignment) int64 { return a.ProjectID })
}

// AccessibleSites returns the distinct non-zero site ids across all
// active assignments.
func (r *Resolver) AccessibleSites() []int64 {
	return distinctIDs(r.active(), func(a RoleAssignment) int64 { return a.SiteID })
}

// HasProject reports whether at least one active assignment carries a
// project. Route guards use this to separate "no project assigned"
// from plain authorization failures.
func (r *Resolver) HasProject() bool {
	return len(r.AccessibleProjects()) > 0
}

func distinctIDs(assignments []RoleAssignment, pick func(RoleAssignment) int64) []int64 {
	seen := make(map[int64]struct{}, len(assignments))
	var out []int64
	for _, a := range assignments {
		id := pick(a)
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
