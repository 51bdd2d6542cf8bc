package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/helpdeskhq/support-desk/internal/api/http/handlers"
	"github.com/helpdeskhq/support-desk/internal/auth"
	"github.com/helpdeskhq/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/user", cfg.AuthMiddleware.Handle, cfg.Users.Me)
	authGroup.Put("/password", cfg.AuthMiddleware.Handle, cfg.Users.ChangePassword)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/preview-priority", cfg.Tickets.PreviewPriority)
	tickets.Get("/statistics-by-priority", auth.RequireAdmin(), cfg.Tickets.Statistics)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/resolve", auth.RequireStaff(), cfg.Tickets.ResolveTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/auto-assign", auth.RequireStaff(), cfg.Tickets.AutoAssign)
	tickets.Post("/:id/assign-self", auth.RequireStaff(), cfg.Tickets.SelfAssign)
	tickets.Get("/:id/history", auth.RequireStaff(), cfg.Tickets.History)

	users := api.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("/technicians", auth.RequireStaff(), cfg.Users.ListTechnicians)
	users.Get("/", auth.RequireAdmin(), cfg.Users.ListUsers)
	users.Post("/", auth.RequireAdmin(), cfg.Users.CreateUser)
	users.Put("/:id", auth.RequireAdmin(), cfg.Users.UpdateUser)
	users.Delete("/:id", auth.RequireAdmin(), cfg.Users.DeleteUser)
}
