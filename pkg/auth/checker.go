package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Role is the access level of a management user.
type Role string

// Roles. An operator may move ports and VLAN bindings but not create or
// delete LAGs and VLANs.
const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var viewPermissions = []Permission{PermInterfaceView, PermLAGView, PermVLANView}

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {PermAll},
	RoleOperator: append([]Permission{
		PermInterfaceModify, PermLAGModify, PermVLANModify,
	}, viewPermissions...),
	RoleViewer: viewPermissions,
}

// ParseRole parses a role name. An empty name is an admin.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(s)); r {
	case "":
		return RoleAdmin, nil
	case RoleAdmin, RoleOperator, RoleViewer:
		return r, nil
	}
	return "", util.NewValidationError(fmt.Sprintf("unknown role %q (want admin, operator or viewer)", s))
}

// Checker validates user permissions
type Checker struct {
	roles map[string]Role
}

// NewChecker creates a permission checker for users keyed by name.
func NewChecker(roles map[string]Role) *Checker {
	r := make(map[string]Role, len(roles))
	for u, role := range roles {
		r[u] = role
	}
	return &Checker{roles: r}
}

// Role returns the role of a user.
func (c *Checker) Role(username string) (Role, bool) {
	r, ok := c.roles[username]
	return r, ok
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission) error {
	if permission == "" {
		return nil
	}
	role, ok := c.roles[username]
	if ok {
		for _, p := range rolePermissions[role] {
			if p == PermAll || p == permission {
				return nil
			}
		}
	}
	return &PermissionError{User: username, Role: role, Permission: permission}
}

// CheckCommand verifies that a user may run a console command line.
func (c *Checker) CheckCommand(username, line string) error {
	return c.CheckUser(username, ForCommand(line))
}

// ListPermissionsForUser returns all permissions a user has
func (c *Checker) ListPermissionsForUser(username string) []Permission {
	role, ok := c.roles[username]
	if !ok {
		return nil
	}
	perms := append([]Permission(nil), rolePermissions[role]...)
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Role       Role
	Permission Permission
}

func (e *PermissionError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("user '%s' has no role", e.User)
	}
	return fmt.Sprintf("user '%s' (%s) does not have '%s' permission", e.User, e.Role, e.Permission)
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
