package access

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of portals a user can operate under.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleCustomer   Role = "CUSTOMER"
	RoleFunder     Role = "FUNDER"
	RoleOMProvider Role = "OM_PROVIDER"
)

// Roles lists every known role in declaration order.
var Roles = []Role{RoleSuperAdmin, RoleCustomer, RoleFunder, RoleOMProvider}

var ErrUnknownRole = errors.New("access: unknown role")

// ParseRole normalizes a role name received over the wire.
func ParseRole(s string) (Role, error) {
	normalized := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, r := range Roles {
		if r == normalized {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
