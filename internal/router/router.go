package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/jborjar/paquetes/api/handler"
)

type Handlers struct {
	Auth     *apiHandler.AuthHandler
	Sessions *apiHandler.SessionsHandler
	Health   *apiHandler.HealthHandler
}

// Middleware bundles the route guards by the scope they demand. Each is a
// RequireSession wrapper built at wiring time with the scopes baked in.
type Middleware struct {
	// Authenticated requires a valid session, any scopes.
	Authenticated func(fasthttp.RequestHandler) fasthttp.RequestHandler
	// Peek requires a valid session but does not count as activity.
	Peek func(fasthttp.RequestHandler) fasthttp.RequestHandler
	// SessionsRead requires "sessions:read".
	SessionsRead func(fasthttp.RequestHandler) fasthttp.RequestHandler
	// SessionsAdmin requires "sessions:admin".
	SessionsAdmin func(fasthttp.RequestHandler) fasthttp.RequestHandler
}

func New(handlers Handlers, mw Middleware) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Credential exchange
	r.POST("/api/v1/auth/login", handlers.Auth.Login)

	// Own-session routes
	r.POST("/api/v1/auth/logout", mw.Authenticated(handlers.Auth.Logout))
	r.GET("/api/v1/auth/session", mw.Peek(handlers.Auth.Session))

	// Administrative surface
	r.GET("/api/v1/auth/sessions", mw.SessionsRead(handlers.Sessions.List))
	r.DELETE("/api/v1/auth/sessions/{username}", mw.SessionsAdmin(handlers.Sessions.RevokeUser))
	r.POST("/api/v1/auth/cleanup", mw.SessionsAdmin(handlers.Sessions.Cleanup))

	return r
}
