package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"disputeflow/auth"
)

// AuthHandler serves login, user management and password reset.
type AuthHandler struct {
	svc    *auth.Service
	logger *zap.Logger
}

func NewAuthHandler(svc *auth.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Login issues a session token for valid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Login successful", map[string]any{
		"token": result.Token,
		"email": result.Email,
		"role":  result.Role,
		"group": result.Group,
	})
}

// Register provisions an account (super_admin only) and sends the setup
// link. A failed email degrades to a warning in the response.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	var req auth.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	result, err := h.svc.CreateUser(r.Context(), sub, req)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	data := map[string]any{"id": result.User.ID}
	if result.Warning != "" {
		data["warning"] = result.Warning
	}
	OK(w, r, "User created successfully", data)
}

// DeleteUser removes an account. super_admin only.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	if err := h.svc.DeleteUser(r.Context(), sub, chi.URLParam(r, "id")); err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "User deleted successfully", nil)
}

// UpdateUser replaces username, email and role. super_admin or admin.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	var req auth.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	if err := h.svc.UpdateUser(r.Context(), sub, req); err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "User updated successfully", nil)
}

// ListUsers returns every user with role names.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	sub, ok := SubjectFrom(r.Context())
	if !ok {
		FailErr(w, r, h.logger, auth.ErrMissingAuth)
		return
	}

	users, err := h.svc.ListUsers(r.Context(), sub)
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Users fetched successfully", users)
}

// GetUser fetches one user by id.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "User fetched successfully", map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role_id":  user.RoleID,
		"group":    user.Group,
	})
}

// ResetPassword consumes a setup or reset link; the token carries identity.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		FailValidation(w, r, map[string]string{"body": "invalid JSON"})
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		FailErr(w, r, h.logger, err)
		return
	}

	OK(w, r, "Password reset successfully", nil)
}
