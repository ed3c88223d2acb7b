// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/gateleaf/ticket-engine/internal/config"
	"github.com/gateleaf/ticket-engine/internal/handler"
	"github.com/gateleaf/ticket-engine/internal/middleware"
	"github.com/gateleaf/ticket-engine/internal/model"
)

// RegisterPublic registers routes that do not require authentication:
// the health check and the browse/availability endpoints.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/events", p.ListEvents)
	e.GET("/v1/events/:id", p.GetEvent)
	e.GET("/v1/events/:id/availability", p.Availability)
}

// RegisterAuth registers the authentication endpoints. Unauthenticated
// operations live under /v1/auth; /v1/me requires a valid token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterClaims registers the subscriber claim endpoints. All routes
// require a valid JWT with the SUBSCRIBER role; the mutating ones sit
// behind the Redis token-bucket limiter so claim storms at on-sale
// time degrade fairly per user.
func RegisterClaims(e *echo.Echo, h *handler.ClaimHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group(
		"/v1/claims",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSubscriber),
	)
	limited := middleware.NewTokenBucket(rlCfg, rdb)
	g.POST("", h.Create, limited)
	g.DELETE("/:id", h.Delete, limited)
	g.GET("", h.List)
	g.GET("/:id/download", h.Download)
}

// RegisterAdmin registers administration endpoints under /v1/admin,
// restricted to the ADMIN role.
func RegisterAdmin(e *echo.Echo, ev *handler.AdminEventHandler, ing *handler.AdminIngestHandler, tk *handler.AdminTicketHandler, us *handler.AdminUserHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	g.POST("/events", ev.CreateEvent)
	g.PATCH("/events/:id/capacity", ev.UpdateCapacity)
	g.DELETE("/events/:id", ev.DeleteEvent)
	g.POST("/events/:id/reconcile", ev.Reconcile)
	g.POST("/events/:id/ticket-types", ev.CreateTicketType)
	g.PATCH("/ticket-types/:id/criteria", ev.UpdateCriteria)

	g.POST("/ticket-types/:id/ingest", ing.Ingest)
	g.POST("/ingest/:session/commit", ing.Commit)
	g.DELETE("/ingest/:session", ing.Discard)

	g.GET("/ticket-types/:id/tickets", tk.ListByType)
	g.POST("/tickets/:id/assign", tk.Assign)
	g.DELETE("/tickets/:id/claim", tk.Unclaim)
	g.DELETE("/tickets/:id", tk.Delete)
	g.GET("/tickets/:id/url", tk.SignedURL)

	g.PATCH("/users/:id/tier", us.UpdateTier)
}
