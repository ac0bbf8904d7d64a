package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/auth"
	"github.com/spec-kit/enrollment-portal/internal/cache"
	"github.com/spec-kit/enrollment-portal/internal/config"
	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/mail"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

// Session is an issued session token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// RegisterInput describes a new student account.
type RegisterInput struct {
	Email           string
	Password        string
	FirstName       string
	LastNamePaterno string
	LastNameMaterno string
}

// AuthService coordinates registration, login and password flows.
type AuthService struct {
	users         repository.UserRepository
	resets        repository.PasswordResetRepository
	tokenMgr      *auth.TokenManager
	hasher        *auth.PasswordHasher
	mailer        mail.Mailer
	cache         cache.Invalidator
	resetTTL      time.Duration
	publicBaseURL string
	logger        *zap.Logger
	now           func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Tokens            *auth.TokenManager
	Hasher            *auth.PasswordHasher
	Mailer            mail.Mailer
	Cache             cache.Invalidator
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	ttl := time.Duration(cfg.Auth.PasswordResetTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{
		users:         deps.UserRepo,
		resets:        deps.PasswordResetRepo,
		tokenMgr:      deps.Tokens,
		hasher:        deps.Hasher,
		mailer:        deps.Mailer,
		cache:         deps.Cache,
		resetTTL:      ttl,
		publicBaseURL: cfg.App.PublicBaseURL,
		logger:        deps.Logger,
		now:           time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// Register creates a student account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.CreateAccount(ctx, in, domain.RoleStudent)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateAccount stores a new account with the given role.
func (s *AuthService) CreateAccount(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	email := normalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	user.FirstName = optionalString(in.FirstName)
	user.LastNamePaterno = optionalString(in.LastNamePaterno)
	user.LastNameMaterno = optionalString(in.LastNameMaterno)
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, err
	}
	s.cache.InvalidateAggregates(ctx)
	return user, nil
}

// Promote changes the role of the account registered under email.
func (s *AuthService) Promote(ctx context.Context, email string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, notFoundOr(err, "user", email)
	}
	if err := s.users.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	s.cache.InvalidateAggregates(ctx)
	return user, nil
}

// Login verifies credentials. Unknown e-mails and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// RequestPasswordReset stores a reset token and mails the link. An unknown e-mail
// is answered the same way as a known one.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Debug("password reset for unknown email")
			return nil
		}
		return err
	}

	token := &repository.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.publicBaseURL, url.QueryEscape(token.Token))
	body, err := mail.Render("password_reset.html", map[string]string{
		"Link": link,
		"TTL":  formatTTL(s.resetTTL),
	})
	if err == nil {
		err = s.mailer.Send(ctx, mail.Message{To: user.Email, Subject: "Restablecer Contraseña", HTML: body})
	}
	if err != nil {
		s.logger.Warn("send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

func formatTTL(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", hours)
	}
	return fmt.Sprintf("%d minutos", int(d/time.Minute))
}

// ResetPassword consumes a reset token and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, tokenStr, newPassword string) error {
	invalid := apperrors.NewValidationError("invalid or expired token", nil)
	token, err := s.resets.GetByToken(ctx, tokenStr)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return invalid
		}
		return err
	}
	if !token.Usable(s.now()) {
		return invalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.resets.MarkUsed(ctx, token.ID); err != nil {
		if apperrors.IsNotFound(err) {
			return invalid
		}
		return err
	}
	return s.users.UpdatePassword(ctx, token.UserID, hash)
}

// ChangePassword verifies the current password before storing the new one.
func (s *AuthService) ChangePassword(ctx context.Context, actor domain.Actor, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return notFoundOr(err, "user", actor.UserID)
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperrors.NewValidationError("current password is incorrect", nil)
		}
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
