package domain

import "time"

// Role distinguishes the two kinds of accounts.
type Role string

const (
	RoleLeader       Role = "leader"
	RoleCollaborator Role = "collaborator"
)

// User represents a leader or collaborator account.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the verified caller extracted from a bearer token.
type Identity struct {
	UserID int64
	Role   Role
}
