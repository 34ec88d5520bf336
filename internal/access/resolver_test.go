package access

import (
	"testing"
	"time"
)

func activeAssignment(role Role, projectID, siteID int64, perms ...Permission) RoleAssignment {
	return RoleAssignment{
		Role:        role,
		ProjectID:   projectID,
		SiteID:      siteID,
		Permissions: perms,
		Active:      true,
	}
}

func TestSuperAdminIsWildcard(t *testing.T) {
	r := NewResolver([]RoleAssignment{
		activeAssignment(RoleSuperAdmin, 0, 0),
	}, RoleSuperAdmin)

	portals := r.AccessiblePortals()
	if len(portals) != 1 || portals[0] != RoleSuperAdmin {
		t.Fatalf("unexpected portals: %v", portals)
	}
	if r.HasRole(RoleCustomer) {
		t.Fatal("SUPER_ADMIN assignment must not satisfy hasRole(CUSTOMER)")
	}
	for _, pair := range [][2]string{{"sites", "write"}, {"financial", "read"}, {"anything", "delete"}} {
		if !r.HasPermission(pair[0], pair[1]) {
			t.Fatalf("expected wildcard permission for %s/%s", pair[0], pair[1])
		}
	}
}

func TestPermissionScopedToCurrentPortal(t *testing.T) {
	assignments := []RoleAssignment{
		activeAssignment(RoleCustomer, 1, 0,
			Permission{Resource: "sites", Action: "read", Scope: ScopeOwn}),
		activeAssignment(RoleFunder, 2, 0,
			Permission{Resource: "financial", Action: "read", Scope: ScopeFunded}),
	}

	asCustomer := NewResolver(assignments, RoleCustomer)
	if asCustomer.HasPermission("financial", "read") {
		t.Fatal("FUNDER grant must not apply under the CUSTOMER portal")
	}
	if !asCustomer.HasPermission("sites", "read") {
		t.Fatal("expected own-scope sites read under CUSTOMER portal")
	}

	asFunder := NewResolver(assignments, RoleFunder)
	if !asFunder.HasPermission("financial", "read") {
		t.Fatal("expected funded financial read under FUNDER portal")
	}
	if asFunder.HasPermission("sites", "read") {
		t.Fatal("CUSTOMER grant must not apply under the FUNDER portal")
	}
}

func TestScopeEvaluation(t *testing.T) {
	assignments := []RoleAssignment{
		activeAssignment(RoleFunder, 7, 0,
			Permission{Resource: "financial", Action: "read", Scope: ScopeFunded}),
		activeAssignment(RoleOMProvider, 0, 31,
			Permission{Resource: "devices", Action: "write", Scope: ScopeContracted}),
	}

	funder := NewResolver(assignments, RoleFunder)
	if !funder.HasPermission("financial", "read") {
		t.Fatal("funded scope should pass when the assignment project is accessible")
	}

	om := NewResolver(assignments, RoleOMProvider)
	if !om.HasPermission("devices", "write") {
		t.Fatal("contracted scope should pass when the assignment site is accessible")
	}

	// A funded grant on an unscoped assignment never passes. The scope
	// requires membership of the assignment's own project in the
	// accessible set, and an unscoped assignment has none.
	unscoped := NewResolver([]RoleAssignment{
		activeAssignment(RoleFunder, 0, 0,
			Permission{Resource: "financial", Action: "read", Scope: ScopeFunded}),
	}, RoleFunder)
	if unscoped.HasPermission("financial", "read") {
		t.Fatal("funded scope on an unscoped assignment must fail")
	}
}

func TestWildcardFields(t *testing.T) {
	r := NewResolver([]RoleAssignment{
		activeAssignment(RoleOMProvider, 0, 5,
			Permission{Resource: "devices", Action: Wildcard, Scope: ScopeAll},
			Permission{Resource: Wildcard, Action: "read", Scope: ScopeAll}),
	}, RoleOMProvider)

	if !r.HasPermission("devices", "write") {
		t.Fatal("expected wildcard action match")
	}
	if !r.HasPermission("plants", "read") {
		t.Fatal("expected wildcard resource match")
	}
	if r.HasPermission("plants", "write") {
		t.Fatal("unexpected match outside both wildcards")
	}
}

func TestAccessiblePortalsDistinctAndStable(t *testing.T) {
	r := NewResolver([]RoleAssignment{
		activeAssignment(RoleCustomer, 1, 0),
		activeAssignment(RoleFunder, 2, 0),
		activeAssignment(RoleCustomer, 3, 0),
		activeAssignment(RoleFunder, 4, 0),
	}, RoleCustomer)

	portals := r.AccessiblePortals()
	if len(portals) != 2 {
		t.Fatalf("expected 2 distinct portals, got %v", portals)
	}
	if portals[0] != RoleCustomer || portals[1] != RoleFunder {
		t.Fatalf("expected first-seen order, got %v", portals)
	}
}

func TestInactiveAndExpiredAssignmentsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	r := NewResolver([]RoleAssignment{
		{Role: RoleCustomer, ProjectID: 1, Active: false},
		{Role: RoleFunder, ProjectID: 2, Active: true, ExpiresAt: &past},
	}, RoleCustomer, WithClock(func() time.Time { return now }))

	if portals := r.AccessiblePortals(); len(portals) != 0 {
		t.Fatalf("expected no accessible portals, got %v", portals)
	}
	if r.HasRole(RoleCustomer) || r.HasRole(RoleFunder) {
		t.Fatal("inactive or expired assignments must not satisfy hasRole")
	}
}

func TestDerivedProjectAndSiteSets(t *testing.T) {
	r := NewResolver([]RoleAssignment{
		activeAssignment(RoleCustomer, 1, 10),
		activeAssignment(RoleFunder, 2, 0),
		activeAssignment(RoleFunder, 1, 11),
	}, RoleCustomer)

	projects := r.AccessibleProjects()
	if len(projects) != 2 || projects[0] != 1 || projects[1] != 2 {
		t.Fatalf("unexpected projects: %v", projects)
	}
	sites := r.AccessibleSites()
	if len(sites) != 2 || sites[0] != 10 || sites[1] != 11 {
		t.Fatalf("unexpected sites: %v", sites)
	}
	if !r.HasProject() {
		t.Fatal("expected HasProject")
	}

	none := NewResolver([]RoleAssignment{activeAssignment(RoleSuperAdmin, 0, 0)}, RoleSuperAdmin)
	if none.HasProject() {
		t.Fatal("unscoped assignments must not report a project")
	}
}

func TestHasRoleWithScopeNarrowing(t *testing.T) {
	r := NewResolver([]RoleAssignment{
		activeAssignment(RoleOMProvider, 3, 30),
	}, RoleOMProvider)

	if !r.HasRole(RoleOMProvider, InProject(3)) {
		t.Fatal("expected role match within project 3")
	}
	if r.HasRole(RoleOMProvider, InProject(4)) {
		t.Fatal("unexpected role match for project 4")
	}
	if !r.HasRole(RoleOMProvider, AtSite(30)) {
		t.Fatal("expected role match at site 30")
	}
	if r.HasRole(RoleOMProvider, AtSite(31)) {
		t.Fatal("unexpected role match at site 31")
	}
}

func TestParseRoleAndScope(t *testing.T) {
	role, err := ParseRole(" om_provider ")
	if err != nil || role != RoleOMProvider {
		t.Fatalf("ParseRole: %v %v", role, err)
	}
	if _, err := ParseRole("INSTALLER"); err == nil {
		t.Fatal("expected error for unknown role")
	}

	scope, err := ParseScope("")
	if err != nil || scope != ScopeAll {
		t.Fatalf("empty scope should default to all, got %v %v", scope, err)
	}
	if _, err := ParseScope("global"); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestApplyDefaults(t *testing.T) {
	assignments := []RoleAssignment{
		activeAssignment(RoleCustomer, 1, 0),
		activeAssignment(RoleFunder, 2, 0,
			Permission{Resource: "financial", Action: "read", Scope: ScopeFunded}),
	}
	out := ApplyDefaults(assignments, map[Role][]Permission{
		RoleCustomer: {{Resource: "sites", Action: "read", Scope: ScopeOwn}},
	})
	if len(out[0].Permissions) != 1 || out[0].Permissions[0].Resource != "sites" {
		t.Fatalf("override not applied: %v", out[0].Permissions)
	}
	if len(out[1].Permissions) != 1 || out[1].Permissions[0].Resource != "financial" {
		t.Fatalf("explicit permissions must be preserved: %v", out[1].Permissions)
	}

	builtin := ApplyDefaults([]RoleAssignment{activeAssignment(RoleOMProvider, 0, 9)}, nil)
	if len(builtin[0].Permissions) == 0 {
		t.Fatal("expected built-in defaults for OM_PROVIDER")
	}
}
