package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/token-service/internal/api/dto"
	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
	"github.com/spec-kit/token-service/internal/service"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

// TokenService is the token lifecycle used by the HTTP layer.
// *service.AuthTokenManager implements it.
type TokenService interface {
	IssueTokenForUser(ctx context.Context, username, password string) (*service.IssuedToken, error)
	IssueTokenForSubject(ctx context.Context, subject string, roles []domain.Role) (*service.IssuedToken, error)
	RefreshToken(ctx context.Context, tokenID uuid.UUID) (*service.IssuedToken, error)
	BlacklistToken(ctx context.Context, tokenID uuid.UUID) error
	ListUserTokens(ctx context.Context, username string) ([]*domain.AuthToken, error)
	ListSubjectTokens(ctx context.Context, subject string) ([]*domain.AuthToken, error)
	ListUserTokensWithRole(ctx context.Context, username string, role domain.Role) ([]*domain.AuthToken, error)
	ListSubjectTokensWithRole(ctx context.Context, subject string, role domain.Role) ([]*domain.AuthToken, error)
	IsOwnedBy(ctx context.Context, tokenID uuid.UUID, kind domain.OwnerKind, owner string) (bool, error)
}

// TokensHandler exposes token issuance and revocation endpoints.
type TokensHandler struct {
	tokens TokenService
}

// NewTokensHandler constructs handler.
func NewTokensHandler(tokens TokenService) *TokensHandler {
	return &TokensHandler{tokens: tokens}
}

// IssueForUser handles POST /auth/tokens/user.
func (h *TokensHandler) IssueForUser(c *fiber.Ctx) error {
	var req dto.UserTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "username and password required")
	}

	issued, err := h.tokens.IssueTokenForUser(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": tokenPairResponse(issued)})
}

// IssueForSubject handles POST /auth/tokens/subject.
func (h *TokensHandler) IssueForSubject(c *fiber.Ctx) error {
	var req dto.SubjectTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	roles := make([]domain.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		roles = append(roles, domain.Role(strings.TrimSpace(name)))
	}

	issued, err := h.tokens.IssueTokenForSubject(c.UserContext(), req.Subject, roles)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": tokenPairResponse(issued)})
}

// Refresh handles POST /auth/tokens/refresh. The caller authenticates with
// its refresh token.
func (h *TokensHandler) Refresh(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	issued, err := h.tokens.RefreshToken(c.UserContext(), principal.TokenID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenPairResponse(issued)})
}

// Revoke handles DELETE /auth/tokens/:id. Owners may revoke their own
// tokens; admins may revoke any.
func (h *TokensHandler) Revoke(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	tokenID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.NewIllegalArgument("invalid token id", map[string]any{"id": c.Params("id")})
	}

	if !principal.HasRole(domain.RoleAdmin) {
		owner, err := h.tokens.IsOwnedBy(c.UserContext(), tokenID, principal.Kind, principal.Owner)
		if err != nil {
			return err
		}
		if !owner {
			return apperrors.NewUnauthorized("access denied")
		}
	}

	if err := h.tokens.BlacklistToken(c.UserContext(), tokenID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListUserTokens handles GET /auth/users/:username/tokens. An optional
// role query narrows the list to tokens carrying that role.
func (h *TokensHandler) ListUserTokens(c *fiber.Ctx) error {
	var (
		tokens []*domain.AuthToken
		err    error
	)
	if role := c.Query("role"); role != "" {
		tokens, err = h.tokens.ListUserTokensWithRole(c.UserContext(), c.Params("username"), domain.Role(role))
	} else {
		tokens, err = h.tokens.ListUserTokens(c.UserContext(), c.Params("username"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authTokenResponses(tokens)})
}

// ListSubjectTokens handles GET /auth/subjects/:subject/tokens, with the
// same optional role query.
func (h *TokensHandler) ListSubjectTokens(c *fiber.Ctx) error {
	var (
		tokens []*domain.AuthToken
		err    error
	)
	if role := c.Query("role"); role != "" {
		tokens, err = h.tokens.ListSubjectTokensWithRole(c.UserContext(), c.Params("subject"), domain.Role(role))
	} else {
		tokens, err = h.tokens.ListSubjectTokens(c.UserContext(), c.Params("subject"))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": authTokenResponses(tokens)})
}
