package models

import "time"

// User is a registry record. Salt, PasswordHash and Token are secret
// material owned by the registry and wiped on shutdown; they never leave the
// security package.
type User struct {
	Username     string
	Salt         []byte
	PasswordHash []byte
	Token        []byte
	Role         Role
	CreatedAt    time.Time
	LastLogin    time.Time
	Active       bool
}

// UserInfo is the secret-free view of a User handed to callers.
type UserInfo struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login,omitempty"`
	Active    bool      `json:"active"`
}

// Info strips secrets from u.
func (u *User) Info() UserInfo {
	return UserInfo{
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
		Active:    u.Active,
	}
}
