package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// RevocationChecker reports whether a decoded token has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID uuid.UUID) (bool, error)
}

// AuthMiddleware validates bearer tokens and stores the principal.
type AuthMiddleware struct {
	tokens      *TokenDecoder
	revocations RevocationChecker
}

// NewAuthMiddleware constructs middleware. revocations may be nil, in which
// case only the signature and expiry are checked.
func NewAuthMiddleware(tokens *TokenDecoder, revocations RevocationChecker) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, revocations: revocations}
}

// Handle enforces an access token on protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	return m.authenticate(c, false)
}

// HandleRefresh enforces a refresh token.
func (m *AuthMiddleware) HandleRefresh(c *fiber.Ctx) error {
	return m.authenticate(c, true)
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx, refresh bool) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	principal, ok := m.tokens.Decode(strings.TrimSpace(parts[1]))
	if !ok {
		return apperrors.NewUnauthenticated("invalid token")
	}
	if principal.IsRefresh() != refresh {
		return apperrors.NewUnauthenticated("unexpected token type")
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(c.UserContext(), principal.TokenID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if revoked {
			return apperrors.NewUnauthenticated("token revoked")
		}
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
