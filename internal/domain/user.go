package domain

import "time"

// Role enumerates the two operator roles.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// ValidRole reports whether the value is a known role.
func ValidRole(r Role) bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is an agent or administrator account.
type User struct {
	ID           string
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Ref returns the embeddable reference form of the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// UserRef is the slim form embedded in ticket responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
