package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/config"
	"github.com/spec-kit/token-service/internal/domain"
	"github.com/spec-kit/token-service/internal/events"
	"github.com/spec-kit/token-service/internal/repository"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

// TokenEncoder signs tokens. *auth.TokenEncoder implements it.
type TokenEncoder interface {
	Encode(token *domain.AuthToken) (auth.TokenPair, error)
}

// IssuedToken is returned by issuance and refresh.
type IssuedToken struct {
	TokenID uuid.UUID
	auth.TokenPair
}

// AuthTokenManager drives the token lifecycle: issuance, refresh,
// revocation and listing.
type AuthTokenManager struct {
	users       repository.UserRepository
	credentials repository.CredentialRepository
	tokens      repository.TokenRepository
	revocations repository.RevocationCache
	encoder     TokenEncoder
	hasher      auth.PasswordHasher
	revokedTTL  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// TokenManagerDependencies bundles collaborators of the token manager.
// Encoder may be nil in verifier-only deployments; RevocationCache may be
// nil when no cache is available.
type TokenManagerDependencies struct {
	UserRepo        repository.UserRepository
	CredentialRepo  repository.CredentialRepository
	TokenRepo       repository.TokenRepository
	RevocationCache repository.RevocationCache
	Encoder         TokenEncoder
	Hasher          auth.PasswordHasher
	Logger          *zap.Logger
}

// NewAuthTokenManager builds the manager.
func NewAuthTokenManager(cfg config.TokenConfig, deps TokenManagerDependencies) *AuthTokenManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthTokenManager{
		users:       deps.UserRepo,
		credentials: deps.CredentialRepo,
		tokens:      deps.TokenRepo,
		revocations: deps.RevocationCache,
		encoder:     deps.Encoder,
		hasher:      deps.Hasher,
		revokedTTL:  cfg.RefreshTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// IssueTokenForUser authenticates username/password and issues a token
// carrying the user's current roles. Checks run in order (user exists,
// user active, credential present, password matches) and stop at the first
// failure without touching later collaborators.
func (m *AuthTokenManager) IssueTokenForUser(ctx context.Context, username, password string) (*IssuedToken, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewUnauthenticated("user inactive")
	}

	credential, err := m.credentials.GetLatestByUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !m.hasher.Verify(credential.HashedPassword, password) {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}

	issued, err := m.issue(ctx, domain.NewUserAuthToken(user, m.now().UTC()))
	if err != nil {
		return nil, err
	}
	m.logger.Info("token issued", zap.String("token_id", issued.TokenID.String()), zap.String("username", user.Username))
	return issued, nil
}

// IssueTokenForSubject issues a token for a pre-authenticated non-user
// principal.
func (m *AuthTokenManager) IssueTokenForSubject(ctx context.Context, subject string, roles []domain.Role) (*IssuedToken, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, apperrors.NewIllegalArgument("subject is required", nil)
	}
	for _, role := range roles {
		if !role.Valid() {
			return nil, apperrors.NewIllegalArgument("unknown role", map[string]any{"role": string(role)})
		}
	}

	issued, err := m.issue(ctx, domain.NewSubjectAuthToken(subject, roles, m.now().UTC()))
	if err != nil {
		return nil, err
	}
	m.logger.Info("token issued", zap.String("token_id", issued.TokenID.String()), zap.String("subject", subject))
	return issued, nil
}

func (m *AuthTokenManager) issue(ctx context.Context, token *domain.AuthToken) (*IssuedToken, error) {
	if m.encoder == nil {
		return nil, apperrors.NewInternalError(errors.New("token signing key not configured"))
	}
	if err := m.tokens.Save(ctx, token); err != nil {
		return nil, apperrors.MapError(err)
	}
	return m.encode(token)
}

func (m *AuthTokenManager) encode(token *domain.AuthToken) (*IssuedToken, error) {
	pair, err := m.encoder.Encode(token)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &IssuedToken{TokenID: token.ID(), TokenPair: pair}, nil
}

// RefreshToken re-signs a still-valid token under the same id. Previously
// signed strings stay cryptographically valid until they expire; only the
// stored valid flag revokes them.
func (m *AuthTokenManager) RefreshToken(ctx context.Context, tokenID uuid.UUID) (*IssuedToken, error) {
	token, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("token not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !token.Valid() {
		return nil, apperrors.NewUnauthorized("token revoked")
	}
	if token.Kind() == domain.OwnerKindUser {
		if user := token.User(); user == nil || !user.Active {
			return nil, apperrors.NewUnauthorized("user inactive")
		}
	}
	if m.encoder == nil {
		return nil, apperrors.NewInternalError(errors.New("token signing key not configured"))
	}
	return m.encode(token)
}

// BlacklistToken invalidates a token. Missing and already-invalid tokens
// are no-ops.
func (m *AuthTokenManager) BlacklistToken(ctx context.Context, tokenID uuid.UUID) error {
	token, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.MapError(err)
	}
	if !token.Valid() {
		return nil
	}
	if err := m.invalidate(ctx, token); err != nil {
		return err
	}
	m.logger.Info("token blacklisted", zap.String("token_id", tokenID.String()))
	return nil
}

// ListUserTokens returns a user's tokens, oldest first.
func (m *AuthTokenManager) ListUserTokens(ctx context.Context, username string) ([]*domain.AuthToken, error) {
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNoSuchEntity("user", map[string]any{"username": username})
		}
		return nil, apperrors.MapError(err)
	}
	tokens, err := m.tokens.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNil(tokens), nil
}

// ListSubjectTokens returns a subject's tokens, oldest first. Unknown
// subjects have no tokens.
func (m *AuthTokenManager) ListSubjectTokens(ctx context.Context, subject string) ([]*domain.AuthToken, error) {
	tokens, err := m.tokens.ListBySubject(ctx, subject)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNil(tokens), nil
}

// ListUserTokensWithRole returns a user's tokens whose role snapshot holds
// role, oldest first.
func (m *AuthTokenManager) ListUserTokensWithRole(ctx context.Context, username string, role domain.Role) ([]*domain.AuthToken, error) {
	if !role.Valid() {
		return nil, apperrors.NewIllegalArgument("unknown role", map[string]any{"role": string(role)})
	}
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNoSuchEntity("user", map[string]any{"username": username})
		}
		return nil, apperrors.MapError(err)
	}
	tokens, err := m.tokens.ListByUserAndRole(ctx, user.ID, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNil(tokens), nil
}

// ListSubjectTokensWithRole returns a subject's tokens whose role snapshot
// holds role, oldest first.
func (m *AuthTokenManager) ListSubjectTokensWithRole(ctx context.Context, subject string, role domain.Role) ([]*domain.AuthToken, error) {
	if !role.Valid() {
		return nil, apperrors.NewIllegalArgument("unknown role", map[string]any{"role": string(role)})
	}
	tokens, err := m.tokens.ListBySubjectAndRole(ctx, subject, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return nonNil(tokens), nil
}

// RemoveAllUserTokensWithRole invalidates the user's valid tokens whose
// role snapshot includes the removed role.
func (m *AuthTokenManager) RemoveAllUserTokensWithRole(ctx context.Context, event *events.RoleRemoved) error {
	if event == nil {
		return apperrors.NewIllegalArgument("event is required", nil)
	}
	if event.User == nil {
		return apperrors.NewIllegalArgument("event user is required", nil)
	}
	if event.Role == "" {
		return apperrors.NewIllegalArgument("event role is required", nil)
	}

	tokens, err := m.tokens.ListByUserAndRole(ctx, event.User.ID, event.Role)
	if err != nil {
		return apperrors.MapError(err)
	}
	n, err := m.invalidateAll(ctx, tokens)
	if err != nil {
		return err
	}
	m.logger.Info("tokens revoked after role removal",
		zap.String("user_id", event.User.ID),
		zap.String("role", string(event.Role)),
		zap.Int("count", n))
	return nil
}

// RemoveAllUserTokens invalidates every valid token of a deactivated or
// deleted user.
func (m *AuthTokenManager) RemoveAllUserTokens(ctx context.Context, event *events.UserDisabled) error {
	if event == nil {
		return apperrors.NewIllegalArgument("event is required", nil)
	}
	if event.User == nil {
		return apperrors.NewIllegalArgument("event user is required", nil)
	}

	tokens, err := m.tokens.ListByUser(ctx, event.User.ID)
	if err != nil {
		return apperrors.MapError(err)
	}
	n, err := m.invalidateAll(ctx, tokens)
	if err != nil {
		return err
	}
	m.logger.Info("tokens revoked for disabled user",
		zap.String("user_id", event.User.ID),
		zap.String("reason", string(event.Reason)),
		zap.Int("count", n))
	return nil
}

// IsOwner reports whether principal owns the token. Unknown tokens are
// owned by nobody.
func (m *AuthTokenManager) IsOwner(ctx context.Context, tokenID uuid.UUID, principal string) (bool, error) {
	token, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapError(err)
	}
	return token.Owner() == principal, nil
}

// IsOwnedBy is IsOwner restricted to one owner kind, so a subject can never
// pass as the user of the same name.
func (m *AuthTokenManager) IsOwnedBy(ctx context.Context, tokenID uuid.UUID, kind domain.OwnerKind, owner string) (bool, error) {
	token, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapError(err)
	}
	return token.Kind() == kind && token.Owner() == owner, nil
}

// IsRevoked implements auth.RevocationChecker. Unknown tokens count as
// revoked.
func (m *AuthTokenManager) IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, tokenID)
		if err != nil {
			m.logger.Warn("revocation cache lookup failed", zap.String("token_id", tokenID.String()), zap.Error(err))
		} else if revoked {
			return true, nil
		}
	}

	token, err := m.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, apperrors.MapError(err)
	}
	if !token.Valid() {
		m.markRevoked(ctx, tokenID)
		return true, nil
	}
	return false, nil
}

func (m *AuthTokenManager) invalidateAll(ctx context.Context, tokens []*domain.AuthToken) (int, error) {
	n := 0
	for _, token := range tokens {
		if !token.Valid() {
			continue
		}
		if err := m.invalidate(ctx, token); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *AuthTokenManager) invalidate(ctx context.Context, token *domain.AuthToken) error {
	token.Invalidate()
	if err := m.tokens.Save(ctx, token); err != nil {
		return apperrors.MapError(err)
	}
	m.markRevoked(ctx, token.ID())
	return nil
}

// markRevoked is best effort; the token row stays authoritative.
func (m *AuthTokenManager) markRevoked(ctx context.Context, tokenID uuid.UUID) {
	if m.revocations == nil {
		return
	}
	if err := m.revocations.MarkRevoked(ctx, tokenID, m.revokedTTL); err != nil {
		m.logger.Warn("revocation cache update failed", zap.String("token_id", tokenID.String()), zap.Error(err))
	}
}

func nonNil(tokens []*domain.AuthToken) []*domain.AuthToken {
	if tokens == nil {
		return []*domain.AuthToken{}
	}
	return tokens
}
