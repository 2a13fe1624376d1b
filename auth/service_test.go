package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestService_Login(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-admin", "admin")
	repo.addUser(User{
		ID:     "user-1",
		Email:  "alice@example.com",
		RoleID: "role-admin",
		Group:  "ringo",
	}, "supersafe")

	svc := newTestService(repo, nil)

	result, err := svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "supersafe",
	})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if result.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if result.Role != "admin" {
		t.Fatalf("login: expected role admin got %q", result.Role)
	}
	if result.Group != "ringo" {
		t.Fatalf("login: expected group ringo got %q", result.Group)
	}

	sub, err := svc.tokens.Verify(result.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if sub.UserID != "user-1" || sub.Role != RoleAdmin || sub.Group != "ringo" {
		t.Fatalf("token subject mismatch: %+v", sub)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	repo.addUser(User{ID: "user-1", Email: "alice@example.com", RoleID: "role-user"}, "supersafe")

	svc := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Login(ctx, LoginRequest{Email: "unknown@example.com", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "", Password: ""}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty credentials: expected ErrValidation, got %v", err)
	}
}

func TestService_CreateUser(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	mailer := &fakeMailer{}
	svc := newTestService(repo, mailer)

	actor := Subject{UserID: "admin-1", Role: RoleSuperAdmin, Group: "ringo"}
	result, err := svc.CreateUser(context.Background(), actor, CreateUserRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "initialpass",
		RoleID:   "role-user",
	})
	if err != nil {
		t.Fatalf("create user: unexpected error: %v", err)
	}
	if result.Warning != "" {
		t.Fatalf("expected no warning, got %q", result.Warning)
	}
	// Group is inherited from the creating admin, not client-supplied.
	if result.User.Group != "ringo" {
		t.Fatalf("expected inherited group ringo, got %q", result.User.Group)
	}

	if mailer.lastEmail != "bob@example.com" {
		t.Fatalf("setup email went to %q", mailer.lastEmail)
	}
	if !strings.Contains(mailer.lastLink, "?token=") {
		t.Fatalf("setup link missing token: %q", mailer.lastLink)
	}

	// The setup token in the link must verify and identify the new user.
	raw := mailer.lastLink[strings.Index(mailer.lastLink, "?token=")+len("?token="):]
	sub, err := svc.tokens.Verify(raw)
	if err != nil {
		t.Fatalf("verify setup token: %v", err)
	}
	if sub.Email != "bob@example.com" {
		t.Fatalf("setup token subject email %q", sub.Email)
	}
}

func TestService_CreateUserForbidden(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil)

	req := CreateUserRequest{Username: "bob", Email: "bob@example.com", Password: "x", RoleID: "role-user"}
	for _, role := range []Role{RoleAdmin, RoleUser} {
		actor := Subject{UserID: "actor", Role: role, Group: "ringo"}
		if _, err := svc.CreateUser(context.Background(), actor, req); !errors.Is(err, ErrForbidden) {
			t.Fatalf("role %s: expected ErrForbidden, got %v", role, err)
		}
	}
}

func TestService_CreateUserMailFailureIsWarning(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	mailer := &fakeMailer{err: errors.New("postmark down")}
	svc := newTestService(repo, mailer)

	actor := Subject{UserID: "admin-1", Role: RoleSuperAdmin, Group: "ringo"}
	result, err := svc.CreateUser(context.Background(), actor, CreateUserRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "initialpass",
		RoleID:   "role-user",
	})
	if err != nil {
		t.Fatalf("mail failure must not fail creation: %v", err)
	}
	if result.Warning == "" {
		t.Fatal("expected a warning for the failed setup email")
	}
	if _, ok := repo.usersByEmail["bob@example.com"]; !ok {
		t.Fatal("user should exist despite mail failure")
	}
}

func TestService_ResetPassword(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	repo.addUser(User{ID: "user-1", Email: "alice@example.com", RoleID: "role-user"}, "oldpass")

	svc := newTestService(repo, nil)

	token, err := svc.tokens.Issue(Subject{UserID: "user-1", Email: "alice@example.com", Role: RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	err = svc.ResetPassword(context.Background(), ResetPasswordRequest{
		Token:           token,
		Password:        "newpass123",
		ConfirmPassword: "newpass123",
	})
	if err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "newpass123"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "alice@example.com", Password: "oldpass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
}

func TestService_ResetPasswordValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "t", Password: "a", ConfirmPassword: "b"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("mismatched passwords: expected ErrValidation, got %v", err)
	}

	err = svc.ResetPassword(ctx, ResetPasswordRequest{Token: "garbage", Password: "a", ConfirmPassword: "a"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bad token: expected ErrInvalidToken, got %v", err)
	}
}

func TestService_UpdateUser(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	repo.addUser(User{ID: "user-1", Email: "alice@example.com", RoleID: "role-user"}, "x")

	svc := newTestService(repo, nil)
	ctx := context.Background()

	req := UpdateUserRequest{ID: "user-1", Username: "alice2", Email: "alice2@example.com", RoleID: "role-user"}

	if err := svc.UpdateUser(ctx, Subject{UserID: "u", Role: RoleUser}, req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user role: expected ErrForbidden, got %v", err)
	}
	if err := svc.UpdateUser(ctx, Subject{UserID: "a", Role: RoleAdmin}, req); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if repo.usersByID["user-1"].Username != "alice2" {
		t.Fatal("update did not persist")
	}

	err := svc.UpdateUser(ctx, Subject{UserID: "a", Role: RoleAdmin}, UpdateUserRequest{ID: "user-1"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("partial update: expected ErrValidation, got %v", err)
	}
}

func TestService_DeleteUser(t *testing.T) {
	repo := newFakeRepository()
	repo.addRole("role-user", "user")
	repo.addUser(User{ID: "user-1", Email: "alice@example.com", RoleID: "role-user"}, "x")

	svc := newTestService(repo, nil)
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, Subject{UserID: "a", Role: RoleAdmin}, "user-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin delete: expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteUser(ctx, Subject{UserID: "s", Role: RoleSuperAdmin}, "user-1"); err != nil {
		t.Fatalf("super_admin delete: %v", err)
	}
	if err := svc.DeleteUser(ctx, Subject{UserID: "s", Role: RoleSuperAdmin}, "user-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second delete: expected ErrUserNotFound, got %v", err)
	}
}

func newTestService(repo Repository, mailer SetupMailer) *Service {
	return NewService(repo, NewTokenService("test-secret"), mailer, nil, Options{
		SessionTTL:    time.Hour,
		SetupTTL:      3525 * time.Hour,
		ResetLinkBase: "http://localhost:3002/reset/password",
	})
}

type fakeMailer struct {
	err       error
	lastEmail string
	lastLink  string
}

func (m *fakeMailer) AccountCreated(_ context.Context, email, setupLink string) error {
	m.lastEmail = email
	m.lastLink = setupLink
	return m.err
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	roles        map[string]string
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		roles:        make(map[string]string),
	}
}

func (r *fakeRepository) addRole(id, name string) {
	r.roles[id] = name
}

func (r *fakeRepository) addUser(u User, password string) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u.PasswordHash = string(hash)
	r.usersByEmail[u.Email] = u
	r.usersByID[u.ID] = u
}

func (r *fakeRepository) CreateUser(_ context.Context, params CreateUserParams) (User, error) {
	if _, exists := r.usersByEmail[params.Email]; exists {
		return User{}, ErrDuplicateEmail
	}
	r.nextID++
	user := User{
		ID:           fmt.Sprintf("user-%d", r.nextID),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		RoleID:       params.RoleID,
		Group:        params.Group,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.usersByEmail[user.Email] = user
	r.usersByID[user.ID] = user
	return user, nil
}

func (r *fakeRepository) GetUserByEmail(_ context.Context, email string) (User, error) {
	user, ok := r.usersByEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *fakeRepository) GetUserByID(_ context.Context, userID string) (User, error) {
	user, ok := r.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *fakeRepository) ListUsers(_ context.Context) ([]UserSummary, error) {
	out := make([]UserSummary, 0, len(r.usersByID))
	for _, u := range r.usersByID {
		role := r.roles[u.RoleID]
		if role == "" {
			role = "N/A"
		}
		out = append(out, UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, Role: role})
	}
	return out, nil
}

func (r *fakeRepository) UpdateUser(_ context.Context, params UpdateUserParams) error {
	user, ok := r.usersByID[params.ID]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.usersByEmail, user.Email)
	user.Username = params.Username
	user.Email = params.Email
	user.RoleID = params.RoleID
	r.usersByID[user.ID] = user
	r.usersByEmail[user.Email] = user
	return nil
}

func (r *fakeRepository) DeleteUser(_ context.Context, userID string) error {
	user, ok := r.usersByID[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.usersByID, userID)
	delete(r.usersByEmail, user.Email)
	return nil
}

func (r *fakeRepository) SetPasswordByEmail(_ context.Context, email, passwordHash string) error {
	user, ok := r.usersByEmail[email]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	r.usersByEmail[email] = user
	r.usersByID[user.ID] = user
	return nil
}

func (r *fakeRepository) ListEmails(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(r.usersByEmail))
	for email := range r.usersByEmail {
		out = append(out, email)
	}
	return out, nil
}

func (r *fakeRepository) RoleName(_ context.Context, roleID string) (string, error) {
	name, ok := r.roles[roleID]
	if !ok {
		return "N/A", nil
	}
	return name, nil
}
