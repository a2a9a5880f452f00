package service

import (
	"context"
	"fmt"
	"strings"

	"hospital-waiting-room/internal/models"
	apperrors "hospital-waiting-room/pkg/errors"
	"hospital-waiting-room/pkg/utils"

	"github.com/rs/zerolog/log"
)

type AuthService struct {
	users UserStore
	audit AuditLogger
}

func NewAuthService(users UserStore, audit AuditLogger) *AuthService {
	return &AuthService{
		users: users,
		audit: audit,
	}
}

// LoginResponse represents the response structure for login
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ValidRole reports whether role is one of the staff roles
func ValidRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleReceptionist, models.RoleDoctor:
		return true
	}
	return false
}

// Login authenticates a staff member and issues an access token
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}
	if !utils.ComparePassword(user.PasswordHash, password) {
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}

	accessToken, err := utils.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate access token", err)
	}

	_ = s.audit.CreateAuditLog(ctx, &user.ID, models.AuditUserLogin, fmt.Sprintf("User %s logged in", username))

	return &LoginResponse{
		AccessToken: accessToken,
		User:        toUserResponse(user),
	}, nil
}

// Register creates a staff account
func (s *AuthService) Register(ctx context.Context, username, password, role string, actorID uint) (*UserResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.NewValidationError("username is required")
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if !ValidRole(role) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("role must be one of %s, %s, %s", models.RoleReceptionist, models.RoleDoctor, models.RoleAdmin))
	}

	if existing, err := s.users.FindUserByUsername(ctx, username); err == nil && existing != nil {
		return nil, apperrors.NewConflictError("username already exists")
	}

	passwordHash, err := utils.HashPassword(password)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to create user", err)
	}

	_ = s.audit.CreateAuditLog(ctx, actor(actorID), models.AuditUserRegistration,
		fmt.Sprintf("User %s registered as %s", username, role))

	resp := toUserResponse(user)
	return &resp, nil
}

// EnsureAdmin creates the first admin account when none exists
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	count, err := s.users.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.Register(ctx, username, password, models.RoleAdmin, 0); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	log.Info().Str("username", username).Msg("Bootstrap admin created")
	return nil
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
	}
}
