package models

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	UUID      string  `json:"uuid" db:"uuid"`
	Username  string  `json:"username" db:"username"`
	Role      string  `json:"role" db:"role"`
	AvatarURL *string `json:"avatarUrl,omitempty" db:"avatar_url"`
	IsActive  bool    `json:"isActive" db:"is_active"`
}
