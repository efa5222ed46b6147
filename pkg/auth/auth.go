package auth

// Role is the marketplace side of an authenticated identity.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// Valid reports whether the role belongs to the closed set of roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// Identity is an authenticated participant. It is attached to a connection at
// authentication time and is immutable for the connection's lifetime.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	// Name is the display name carried in the credential. It is only used in
	// user facing notifications such as typing indicators.
	Name string `json:"name,omitempty"`
}
