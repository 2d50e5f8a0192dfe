package workflow

import (
	"fmt"
	"strings"
)

// Role is the acting role of a user in the approval pipeline.
type Role string

const (
	RoleExecutor     Role = "executor"
	RoleRegistrar    Role = "registrar"
	RoleSubRegistrar Role = "sub_registrar"
	RoleDistributor  Role = "distributor"
	RoleTreasurer    Role = "treasurer"
	RoleAdmin        Role = "admin"
)

var validRoles = map[Role]bool{
	RoleExecutor:     true,
	RoleRegistrar:    true,
	RoleSubRegistrar: true,
	RoleDistributor:  true,
	RoleTreasurer:    true,
	RoleAdmin:        true,
}

// ParseRole converts a string into a Role. "requester" is accepted as an alias of executor.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == "requester" {
		return RoleExecutor, nil
	}
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}
