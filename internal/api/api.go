// Package api wires the HTTP surface: routing, request parsing, and the
// translation between service errors and the HTTP error taxonomy.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/tradepost-io/tradepost/internal/auth"
	"github.com/tradepost-io/tradepost/internal/config"
)

var validate = validator.New()

// API holds the HTTP surface and its collaborators.
type API struct {
	cfg       *config.Config
	svc       *auth.Service
	providers map[string]auth.OAuthProvider
	limiter   *ipRateLimiter
	router    *chi.Mux
}

// New creates the API and sets up its routes. providers maps provider name
// to its OAuth implementation; an empty map disables the social login
// routes' functionality (they return 404 for unknown providers anyway).
func New(cfg *config.Config, svc *auth.Service, providers map[string]auth.OAuthProvider) (*API, error) {
	if cfg.APIPort == 0 {
		return nil, fmt.Errorf("must have at least a port to start API")
	}

	a := &API{
		cfg:       cfg,
		svc:       svc,
		providers: providers,
		// 10 credential attempts per minute per IP, small burst.
		limiter: newIPRateLimiter(rate.Limit(10.0/60.0), 10),
		router:  chi.NewRouter(),
	}
	a.setupRoutes()
	return a, nil
}

// Router returns the configured handler.
func (a *API) Router() http.Handler {
	return a.router
}

// Close releases background resources.
func (a *API) Close() {
	a.limiter.Stop()
}

func (a *API) setupRoutes() {
	r := a.router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "https://*.tradepost.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(chimiddleware.Heartbeat("/heartbeat"))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.limiter.Middleware)
			r.Post("/register", a.RegisterHandler)
			r.Post("/login", a.LoginHandler)
		})

		r.Post("/refresh", a.RefreshHandler)
		r.Post("/logout", a.LogoutHandler)

		r.Get("/{provider}", a.OAuthStartHandler)
		r.Get("/{provider}/callback", a.OAuthCallbackHandler)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(a.svc))
			r.Get("/sessions", a.SessionsHandler)
			r.Post("/logout-all", a.LogoutAllHandler)
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(auth.Middleware(a.svc))
		r.Get("/profile", a.ProfileHandler)
		r.Put("/profile", a.UpdateProfileHandler)
		r.Put("/password", a.ChangePasswordHandler)
	})
}

// sessionMeta collects the request metadata recorded with a new session.
func sessionMeta(r *http.Request) auth.SessionMeta {
	return auth.SessionMeta{
		DeviceInfo: r.Header.Get("X-Device-Info"),
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}
