package domain

import (
	"fmt"
	"strings"
)

// Role is one of the four closed actor roles.
type Role string

const (
	RoleEmployee      Role = "employee"
	RoleLocalAdmin    Role = "local_admin"
	RoleRegionalAdmin Role = "regional_admin"
	RoleMasterAdmin   Role = "master_admin"
)

// ParseRole normalizes s and rejects anything outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// Rank orders roles by privilege: employee 0 .. master_admin 3. Unknown roles rank -1.
func (r Role) Rank() int {
	switch r {
	case RoleEmployee:
		return 0
	case RoleLocalAdmin:
		return 1
	case RoleRegionalAdmin:
		return 2
	case RoleMasterAdmin:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether r is at least as privileged as min.
// An unknown role is never at least anything.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

func (r Role) IsAdmin() bool {
	return r.AtLeast(RoleLocalAdmin)
}

func (r Role) String() string { return string(r) }
