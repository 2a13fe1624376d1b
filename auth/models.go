package auth

import "time"

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// User is the domain representation of a portal user. It mirrors the users
// table and carries no JSON annotations so it can be reused by different
// presentation layers.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	RoleID       string
	Group        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the role-joined row returned by user listings.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Subject identifies the authenticated caller as reconstructed from a
// verified bearer token on every request.
type Subject struct {
	UserID string
	Email  string
	Role   Role
	Group  string
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest contains account-provisioning data supplied by an admin.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

// UpdateUserRequest carries a full user update; all fields are required.
type UpdateUserRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	RoleID   string `json:"role_id"`
}

// ResetPasswordRequest consumes a setup or reset link. The token carries the
// subject identity; no session is required.
type ResetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}
