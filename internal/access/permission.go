package access

import (
	"errors"
	"fmt"
	"strings"
)

// Scope narrows a permission to resources related to the grantee.
type Scope string

const (
	// ScopeOwn limits a permission to resources the user owns. Ownership
	// filtering is enforced by the backend; the resolver treats it as a
	// coarse pass-through gate.
	ScopeOwn Scope = "own"
	// ScopeFunded limits a permission to projects the user funds.
	ScopeFunded Scope = "funded"
	// ScopeContracted limits a permission to sites the user services.
	ScopeContracted Scope = "contracted"
	// ScopeAll applies the permission to every resource of its type.
	ScopeAll Scope = "all"
)

// Wildcard matches any resource or action in a permission check.
const Wildcard = "*"

var ErrUnknownScope = errors.New("access: unknown scope")

// ParseScope normalizes a scope name received over the wire. An empty
// scope defaults to "all", matching unqualified grants.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ScopeAll, nil
	case ScopeOwn:
		return ScopeOwn, nil
	case ScopeFunded:
		return ScopeFunded, nil
	case ScopeContracted:
		return ScopeContracted, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// Permission is a (resource, action, scope) capability triple.
type Permission struct {
	Resource string `json:"resource" yaml:"resource"`
	Action   string `json:"action" yaml:"action"`
	Scope    Scope  `json:"scope" yaml:"scope"`
}

// matches reports whether the permission covers the resource/action
// pair, accepting the wildcard on either field of the grant.
func (p Permission) matches(resource, action string) bool {
	if p.Resource != Wildcard && !strings.EqualFold(p.Resource, resource) {
		return false
	}
	if p.Action != Wildcard && !strings.EqualFold(p.Action, action) {
		return false
	}
	return true
}
