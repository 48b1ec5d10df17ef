package chat

import "strings"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes a role name. Agents are treated as sellers.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buyer", "guest":
		return RoleBuyer, true
	case "seller", "agent", "host", "owner":
		return RoleSeller, true
	case "admin", "support":
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Actor is an authenticated caller resolved by the identity gate.
type Actor struct {
	ID          string
	Role        Role
	DisplayName string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) Valid() bool {
	if strings.TrimSpace(a.ID) == "" {
		return false
	}
	_, ok := ParseRole(string(a.Role))
	return ok
}
