package access

// Default permission matrix applied when an upstream role assignment
// arrives without an explicit permission list (the legacy login shape).
// A deployment can override these via the roles YAML file.
var defaultPermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		{Resource: Wildcard, Action: Wildcard, Scope: ScopeAll},
	},
	RoleCustomer: {
		{Resource: "sites", Action: "read", Scope: ScopeOwn},
		{Resource: "devices", Action: "read", Scope: ScopeOwn},
		{Resource: "yield", Action: "read", Scope: ScopeOwn},
		{Resource: "savings", Action: "read", Scope: ScopeOwn},
		{Resource: "reports", Action: "export", Scope: ScopeOwn},
	},
	RoleFunder: {
		{Resource: "financial", Action: "read", Scope: ScopeFunded},
		{Resource: "performance", Action: "read", Scope: ScopeFunded},
		{Resource: "plants", Action: "read", Scope: ScopeFunded},
		{Resource: "reports", Action: "export", Scope: ScopeFunded},
	},
	RoleOMProvider: {
		{Resource: "sites", Action: "read", Scope: ScopeContracted},
		{Resource: "sites", Action: "write", Scope: ScopeContracted},
		{Resource: "devices", Action: "read", Scope: ScopeContracted},
		{Resource: "devices", Action: "write", Scope: ScopeContracted},
		{Resource: "performance", Action: "read", Scope: ScopeContracted},
	},
}

// DefaultPermissions returns a copy of the built-in grant list for the
// role. The copy keeps callers from mutating the shared matrix.
func DefaultPermissions(role Role) []Permission {
	perms, ok := defaultPermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// ApplyDefaults fills in missing permission lists on the assignments
// from the given matrix, falling back to the built-in one.
func ApplyDefaults(assignments []RoleAssignment, overrides map[Role][]Permission) []RoleAssignment {
	out := make([]RoleAssignment, len(assignments))
	copy(out, assignments)
	for i := range out {
		if len(out[i].Permissions) > 0 {
			continue
		}
		if perms, ok := overrides[out[i].Role]; ok && len(perms) > 0 {
			out[i].Permissions = append([]Permission(nil), perms...)
			continue
		}
		out[i].Permissions = DefaultPermissions(out[i].Role)
	}
	return out
}
