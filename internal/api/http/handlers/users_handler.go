package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-service/internal/api/dto"
	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
	apperrors "github.com/spec-kit/token-service/pkg/util/errorutil"
)

// UserService is the user management used by the HTTP layer.
// *service.UserService implements it.
type UserService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	ChangePassword(ctx context.Context, username, currentPassword, newPassword string) error
	GetUser(ctx context.Context, username string) (*domain.User, error)
	Activate(ctx context.Context, username string) (*domain.User, error)
	Deactivate(ctx context.Context, username string) (*domain.User, error)
	AddRole(ctx context.Context, username string, role domain.Role) (*domain.User, error)
	RemoveRole(ctx context.Context, username string, role domain.Role) (*domain.User, error)
	Delete(ctx context.Context, username string) error
}

// UsersHandler exposes user registration and administration.
type UsersHandler struct {
	users UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// Register handles POST /auth/users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	user, err := h.users.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// ChangePassword handles POST /auth/password/change for the caller.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "current and new password required")
	}

	if err := h.users.ChangePassword(c.UserContext(), principal.Owner, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Get handles GET /users/:username.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	return h.respond(c, h.users.GetUser)
}

// Activate handles POST /users/:username/activate.
func (h *UsersHandler) Activate(c *fiber.Ctx) error {
	return h.respond(c, h.users.Activate)
}

// Deactivate handles POST /users/:username/deactivate.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	return h.respond(c, h.users.Deactivate)
}

// AddRole handles POST /users/:username/roles/:role.
func (h *UsersHandler) AddRole(c *fiber.Ctx) error {
	return h.respond(c, func(ctx context.Context, username string) (*domain.User, error) {
		return h.users.AddRole(ctx, username, domain.Role(c.Params("role")))
	})
}

// RemoveRole handles DELETE /users/:username/roles/:role.
func (h *UsersHandler) RemoveRole(c *fiber.Ctx) error {
	return h.respond(c, func(ctx context.Context, username string) (*domain.User, error) {
		return h.users.RemoveRole(ctx, username, domain.Role(c.Params("role")))
	})
}

// Delete handles DELETE /users/:username.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	if err := h.users.Delete(c.UserContext(), c.Params("username")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *UsersHandler) respond(c *fiber.Ctx, op func(context.Context, string) (*domain.User, error)) error {
	user, err := op(c.UserContext(), c.Params("username"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}
