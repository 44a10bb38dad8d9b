package models

type Role string

const (
	RoleCustomer     Role = "customer"
	RoleDriver       Role = "driver"
	RoleFleetManager Role = "fleet_manager"
	RoleAdmin        Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsManager reports whether the actor can act on any booking.
func (a Actor) IsManager() bool {
	return a.Role == RoleFleetManager || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ParseRole accepts the role claim, tolerating the "fleetManager" spelling.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "customer", "client":
		return RoleCustomer, true
	case "driver":
		return RoleDriver, true
	case "fleet_manager", "fleetManager", "fleet-manager", "manager":
		return RoleFleetManager, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}
