package domain

import "time"

// Role grants capabilities to an identity.
type Role string

const (
	RoleUser       Role = "user"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a role value.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleUser, RoleTechnician, RoleAdmin:
		return Role(raw), true
	}
	return "", false
}

// User is an authenticated identity: requester, technician or administrator.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user administers the desk.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsStaff reports whether the user may work tickets (technician or admin).
func (u *User) IsStaff() bool {
	return u != nil && (u.Role == RoleTechnician || u.Role == RoleAdmin)
}
