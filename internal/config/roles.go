package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"nexusgreen.org/internal/access"
)

type rolesFile struct {
	Roles []roleEntry `yaml:"roles"`
}

type roleEntry struct {
	Name        string              `yaml:"name"`
	Permissions []access.Permission `yaml:"permissions"`
}

// LoadRoleDefaults reads a role→permission defaults file. Entries
// overlay the built-in matrix for the named roles; roles absent from
// the file keep their built-in defaults.
func LoadRoleDefaults(path string) (map[access.Role][]access.Permission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf rolesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make(map[access.Role][]access.Permission, len(rf.Roles))
	for _, entry := range rf.Roles {
		role, err := access.ParseRole(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, p := range entry.Permissions {
			if p.Resource == "" || p.Action == "" {
				return nil, fmt.Errorf("%s: role %s has a permission without resource/action", path, role)
			}
		}
		out[role] = entry.Permissions
	}

	// Overlay on the built-in matrix so partial files stay complete.
	for _, role := range access.Roles {
		if _, ok := out[role]; !ok {
			out[role] = access.DefaultPermissions(role)
		}
	}
	return out, nil
}
