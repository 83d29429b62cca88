package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
	"github.com/spec-kit/token-service/internal/events"
	"github.com/spec-kit/token-service/internal/repository"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

// UserService manages users and their password history.
type UserService struct {
	users       repository.UserRepository
	credentials repository.CredentialRepository
	hasher      auth.PasswordHasher
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// UserDependencies bundles collaborators of the user service.
type UserDependencies struct {
	UserRepo       repository.UserRepository
	CredentialRepo repository.CredentialRepository
	Hasher         auth.PasswordHasher
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       deps.UserRepo,
		credentials: deps.CredentialRepo,
		hasher:      deps.Hasher,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// Register creates an active user without roles and its first credential.
func (s *UserService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if exists {
		return nil, apperrors.NewUniqueViolation("username already taken", map[string]any{"username": username})
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{Username: username, Active: true, Roles: []domain.Role{}}
	if err := s.users.CreateWithCredential(ctx, user, &domain.UserCredential{HashedPassword: hash}); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// ChangePassword verifies the current password and appends a new credential.
// Earlier credentials are kept.
func (s *UserService) ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}

	current, err := s.credentials.GetLatestByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		return apperrors.MapError(err)
	}
	if !s.hasher.Verify(current.HashedPassword, currentPassword) {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.credentials.Create(ctx, &domain.UserCredential{UserID: user.ID, HashedPassword: hash}); err != nil {
		return apperrors.MapError(err)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// GetUser fetches a user by username.
func (s *UserService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, username)
}

// Activate re-enables a user.
func (s *UserService) Activate(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Active {
		return user, nil
	}
	user.Active = true
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Deactivate disables a user and revokes its tokens. The revocation is
// requested even when the user was already inactive.
func (s *UserService) Deactivate(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Active {
		user.Active = false
		if err := s.users.Update(ctx, user); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	if err := s.publish(ctx, events.NewUserDisabledEvent(user, events.DisableReasonDeactivated, s.now().UTC())); err != nil {
		return nil, err
	}
	return user, nil
}

// AddRole grants role to a user. Existing tokens keep their snapshot.
func (s *UserService) AddRole(ctx context.Context, username string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewIllegalArgument("unknown role", map[string]any{"role": string(role)})
	}
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.AddRole(role) {
		return user, nil
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// RemoveRole revokes role from a user and every token carrying it.
func (s *UserService) RemoveRole(ctx context.Context, username string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewIllegalArgument("unknown role", map[string]any{"role": string(role)})
	}
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.RemoveRole(role) {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	if err := s.publish(ctx, events.NewRoleRemovedEvent(user, role, s.now().UTC())); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete revokes a user's tokens, then removes its credentials and the user.
// Tokens themselves are kept.
func (s *UserService) Delete(ctx context.Context, username string) error {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return err
	}
	// revoke first: a failed publish must leave the user in place for a retry
	if err := s.publish(ctx, events.NewUserDisabledEvent(user, events.DisableReasonDeleted, s.now().UTC())); err != nil {
		return err
	}
	if err := s.credentials.DeleteAllByUser(ctx, user.ID); err != nil {
		return apperrors.MapError(err)
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return apperrors.MapError(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", user.ID), zap.String("username", username))
	return nil
}

// EnsureAdmin creates (or promotes) username as ADMIN when no user holds
// that role yet. It reports whether anything changed.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" {
		return false, nil
	}
	exists, err := s.users.ExistsByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if exists {
		return false, nil
	}

	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if !taken {
		if _, err := s.Register(ctx, username, password); err != nil {
			return false, err
		}
	}
	if _, err := s.AddRole(ctx, username, domain.RoleAdmin); err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin ensured", zap.String("username", username))
	return true, nil
}

func (s *UserService) getUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNoSuchEntity("user", map[string]any{"username": username})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

func (s *UserService) publish(ctx context.Context, event events.Event) error {
	if s.dispatcher == nil {
		return nil
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return apperrors.MapError(err)
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if strings.TrimSpace(username) == "" || n > domain.UsernameMaxLength {
		return apperrors.NewIllegalArgument("username must be 1-64 characters", map[string]any{"username": username})
	}
	return nil
}

func validatePassword(password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return apperrors.NewIllegalArgument(err.Error(), nil)
	}
	return nil
}
