package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: incorrect email or password")
	// ErrForbidden signals an authorization denial.
	ErrForbidden = errors.New("auth: permission denied")
	// ErrValidation signals missing or malformed input.
	ErrValidation = errors.New("auth: validation error")
)

// SetupMailer sends the account-provisioning email. A nil implementation is
// permitted; the account is created either way.
type SetupMailer interface {
	AccountCreated(ctx context.Context, email, setupLink string) error
}

// Service handles authentication and user-directory business logic.
type Service struct {
	repo   Repository
	tokens *TokenService
	mailer SetupMailer
	logger *zap.Logger

	sessionTTL    time.Duration
	setupTTL      time.Duration
	resetLinkBase string
}

// Options configures TTLs and the password-setup link target.
type Options struct {
	SessionTTL    time.Duration
	SetupTTL      time.Duration
	ResetLinkBase string
}

// LoginResult bundles the token and subject details returned after a
// successful login.
type LoginResult struct {
	Token string
	Email string
	Role  string
	Group string
}

// CreateUserResult reports a created account plus any secondary warning from
// the notification gateway.
type CreateUserResult struct {
	User    User
	Warning string
}

// NewService creates the authentication service. mailer may be nil.
func NewService(repo Repository, tokens *TokenService, mailer SetupMailer, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:          repo,
		tokens:        tokens,
		mailer:        mailer,
		logger:        logger,
		sessionTTL:    opts.SessionTTL,
		setupTTL:      opts.SetupTTL,
		resetLinkBase: opts.ResetLinkBase,
	}
}

// Login authenticates a user and issues a short-lived session token whose
// subject carries the stored role name and group.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if req.Email == "" || req.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	roleName, err := s.repo.RoleName(ctx, user.RoleID)
	if err != nil {
		return LoginResult{}, err
	}

	token, err := s.tokens.Issue(Subject{
		UserID: user.ID,
		Email:  user.Email,
		Role:   Role(roleName),
		Group:  user.Group,
	}, s.sessionTTL)
	if err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("login successful", zap.String("user_id", user.ID), zap.String("role", roleName))

	return LoginResult{
		Token: token,
		Email: user.Email,
		Role:  roleName,
		Group: user.Group,
	}, nil
}

// CreateUser provisions an account on behalf of a super_admin and emails a
// long-lived password-setup link. The new user inherits the creating admin's
// group tag. A failed email is a secondary warning, not a failure.
func (s *Service) CreateUser(ctx context.Context, actor Subject, req CreateUserRequest) (CreateUserResult, error) {
	if !Allowed(ActionCreateUser, actor, "") {
		return CreateUserResult{}, ErrForbidden
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.RoleID == "" {
		return CreateUserResult{}, fmt.Errorf("%w: username, email, password and role_id are required", ErrValidation)
	}
	if actor.Group == "" {
		return CreateUserResult{}, fmt.Errorf("%w: creating token carries no group", ErrForbidden)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return CreateUserResult{}, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		RoleID:       req.RoleID,
		Group:        actor.Group,
	})
	if err != nil {
		return CreateUserResult{}, err
	}

	roleName, err := s.repo.RoleName(ctx, user.RoleID)
	if err != nil {
		return CreateUserResult{}, err
	}

	setupToken, err := s.tokens.Issue(Subject{
		UserID: user.ID,
		Email:  user.Email,
		Role:   Role(roleName),
		Group:  user.Group,
	}, s.setupTTL)
	if err != nil {
		return CreateUserResult{}, err
	}

	result := CreateUserResult{User: user}
	if s.mailer != nil {
		link := s.resetLinkBase + "?token=" + url.QueryEscape(setupToken)
		if err := s.mailer.AccountCreated(ctx, user.Email, link); err != nil {
			s.logger.Warn("setup email failed",
				zap.String("user_id", user.ID),
				zap.String("email", user.Email),
				zap.Error(err))
			result.Warning = "account created but the setup email could not be sent"
		}
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("created_by", actor.UserID))

	return result, nil
}

// ResetPassword consumes a setup or reset link. The token itself carries the
// identity; password and confirmation must match.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.Password == "" || req.ConfirmPassword == "" {
		return fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if req.Password != req.ConfirmPassword {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	sub, err := s.tokens.Verify(req.Token)
	if err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}

	if err := s.repo.SetPasswordByEmail(ctx, sub.Email, string(passwordHash)); err != nil {
		return err
	}

	s.logger.Info("password reset", zap.String("email", sub.Email))
	return nil
}

// UpdateUser replaces username, email and role. Restricted to super_admin
// and admin; all fields are required together.
func (s *Service) UpdateUser(ctx context.Context, actor Subject, req UpdateUserRequest) error {
	if !Allowed(ActionUpdateUser, actor, "") {
		return ErrForbidden
	}
	if req.ID == "" || req.Username == "" || req.Email == "" || req.RoleID == "" {
		return fmt.Errorf("%w: id, username, email and role_id are required", ErrValidation)
	}

	if err := s.repo.UpdateUser(ctx, UpdateUserParams(req)); err != nil {
		return err
	}

	s.logger.Info("user updated",
		zap.String("user_id", req.ID),
		zap.String("updated_by", actor.UserID))
	return nil
}

// DeleteUser removes an account. super_admin only.
func (s *Service) DeleteUser(ctx context.Context, actor Subject, userID string) error {
	if !Allowed(ActionDeleteUser, actor, "") {
		return ErrForbidden
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("user deleted",
		zap.String("user_id", userID),
		zap.String("deleted_by", actor.UserID))
	return nil
}

// ListUsers returns every user with role names. Any authenticated subject
// may list.
func (s *Service) ListUsers(ctx context.Context, actor Subject) ([]UserSummary, error) {
	if !Allowed(ActionListUsers, actor, "") {
		return nil, ErrForbidden
	}
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	return s.repo.GetUserByID(ctx, userID)
}
