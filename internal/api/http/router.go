package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/token-service/internal/api/http/handlers"
	"github.com/spec-kit/token-service/internal/auth"
	"github.com/spec-kit/token-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tokens         *handlers.TokensHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	adminOnly := auth.RequireRole(domain.RoleAdmin)

	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
		app.Get("/health/metrics", cfg.Health.Metrics)
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/tokens/user", cfg.Tokens.IssueForUser)
	authGroup.Post("/tokens/refresh", cfg.AuthMiddleware.HandleRefresh, cfg.Tokens.Refresh)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/tokens/subject", adminOnly, cfg.Tokens.IssueForSubject)
	protected.Delete("/tokens/:id", cfg.Tokens.Revoke)
	protected.Get("/users/:username/tokens", auth.RequireSelfOrRole("username", domain.RoleAdmin), cfg.Tokens.ListUserTokens)
	protected.Get("/subjects/:subject/tokens", adminOnly, cfg.Tokens.ListSubjectTokens)
	protected.Post("/password/change", cfg.Users.ChangePassword)

	users := app.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("/:username", auth.RequireSelfOrRole("username", domain.RoleAdmin), cfg.Users.Get)
	users.Delete("/:username", adminOnly, cfg.Users.Delete)
	users.Post("/:username/activate", adminOnly, cfg.Users.Activate)
	users.Post("/:username/deactivate", adminOnly, cfg.Users.Deactivate)
	users.Post("/:username/roles/:role", adminOnly, cfg.Users.AddRole)
	users.Delete("/:username/roles/:role", adminOnly, cfg.Users.RemoveRole)
}
