package auth

import (
	"fmt"
	"sort"
	"strings"

	"socialservice/internal/config"
	"socialservice/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Role       string
	Permission string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("role %s lacks permission %s", e.Role, e.Permission)
}

// Policy maps roles to the permissions granted by the service config.
type Policy struct {
	roles map[string]map[string]struct{}
}

// NewPolicy builds the role guard from cfg.RBAC.
func NewPolicy(cfg *config.Config) Policy {
	p := Policy{roles: map[string]map[string]struct{}{}}
	if cfg == nil {
		return p
	}
	for roleID, role := range cfg.RBAC.Roles {
		perms := make(map[string]struct{}, len(role.Permissions))
		for _, perm := range role.Permissions {
			perms[strings.TrimSpace(perm)] = struct{}{}
		}
		p.roles[roleID] = perms
	}
	return p
}

// Known reports whether role is defined.
func (p Policy) Known(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// Allowed reports whether role grants perm. A role holding "*" is granted
// every permission.
func (p Policy) Allowed(role, perm string) bool {
	perms, ok := p.roles[role]
	if !ok {
		return false
	}
	if _, ok := perms["*"]; ok {
		return true
	}
	_, ok = perms[perm]
	return ok
}

// Require returns a ForbiddenError unless actor's role grants perm.
func (p Policy) Require(actor domain.Actor, perm string) error {
	if !p.Allowed(actor.Role, perm) {
		return ForbiddenError{Role: actor.Role, Permission: perm}
	}
	return nil
}

// Permissions lists the permissions of role in lexical order.
func (p Policy) Permissions(role string) []string {
	perms := p.roles[role]
	out := make([]string, 0, len(perms))
	for perm := range perms {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}
