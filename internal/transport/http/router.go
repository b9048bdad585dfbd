package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/quote-api-nosql/internal/application/notification"
	"github.com/quote-api-nosql/internal/application/quote"
	"github.com/quote-api-nosql/internal/application/session"
	"github.com/quote-api-nosql/internal/application/user"
	"github.com/quote-api-nosql/internal/config"
	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/transport/http/handler"
	appmiddleware "github.com/quote-api-nosql/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw, optionalAuthMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
		optionalAuthMw = appmiddleware.OptionalAuth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
		optionalAuthMw = authMw
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	quoteSvc := quote.NewService(quote.ServiceDeps{
		QuoteRepo:        deps.QuoteRepo,
		NotificationRepo: deps.NotificationRepo,
		Documents:        deps.S3Store,
		SMS:              deps.SMSSender,
		StaffAlertPhone:  deps.StaffAlertPhone,
		Log:              deps.Log,
	})
	notifSvc := notification.NewService(deps.NotificationRepo, deps.UserRepo, deps.Log)
	sessionSvc := session.NewService(deps.SessionRepo, deps.UserRepo, deps.JWTProvider, deps.RefreshExpiry)
	userSvc := user.NewService(deps.UserRepo, deps.SessionRepo)

	healthH := handler.NewHealthHandler()
	quoteH := handler.NewQuoteHandler(quoteSvc)
	notifH := handler.NewNotificationHandler(notifSvc, deps.AlertManager)
	sessionH := handler.NewSessionHandler(sessionSvc, deps.AlertManager)
	userH := handler.NewUserHandler(userSvc)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)

		// Public intake; optional auth attaches the quote to the account.
		r.With(sensitiveRL.Limit, optionalAuthMw).Post("/quotes", quoteH.Create)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}", userH.Update)
			r.Post("/users/password", userH.ChangePassword)

			r.Get("/quotes", quoteH.List)
			r.Get("/quotes/{id}", quoteH.Get)
			r.Put("/quotes/{id}/reject", quoteH.CustomerReject)
			r.Post("/quotes/{id}/payment", quoteH.Payment)
			r.Get("/quotes/{id}/document", quoteH.Document)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread", notifH.ListUnread)
			r.Get("/notifications/poll", notifH.Poll)
			r.Put("/notifications/{id}", notifH.MarkAsRead)
			r.Post("/notifications/setup", notifH.Setup)
			r.Post("/notifications/teardown", notifH.Teardown)
			r.Post("/notifications/test-alert", notifH.TestAlert)
			r.Post("/notifications/{id}/click", notifH.Click)
			r.Get("/notifications/toasts", notifH.Toasts)
			r.Get("/notifications/stream", notifH.Stream)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/quotes/counts", quoteH.Counts)
				r.Put("/quotes/{id}/respond", quoteH.Respond)
				r.Put("/quotes/{id}/admin-reject", quoteH.Reject)
				r.Post("/quotes/{id}/document", quoteH.UploadDocument)
				r.Delete("/quotes/{id}", quoteH.Delete)

				r.Delete("/users/{id}", userH.Delete)

				r.Post("/notifications/broadcast", notifH.Broadcast)
			})
		})
	})

	return r
}
