// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/dashboard"
	"github.com/rentaldesk/rentals/internal/document"
	"github.com/rentaldesk/rentals/internal/handler"
	"github.com/rentaldesk/rentals/internal/installment"
	"github.com/rentaldesk/rentals/internal/metrics"
	"github.com/rentaldesk/rentals/internal/payment"
	"github.com/rentaldesk/rentals/internal/store"
)

// Deps are the collaborators the routes are served from. Address,
// Renderer, Stream and Metrics are optional.
type Deps struct {
	Store     store.Store
	Activity  activity.Store
	Generator *installment.Generator
	Engine    *payment.Engine
	Dashboard *dashboard.Service
	Auth      *auth.Service
	Address   handler.AddressLookup
	Renderer  document.Renderer
	Stream    http.Handler
	Metrics   *metrics.Metrics

	CookieName     string
	SecureCookie   bool
	AllowedOrigins []string
}

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// NewRouter registers every route on a chi router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.Recovery)
	r.Use(handler.Logging)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(handler.CORS(d.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	ah := handler.NewAuthHandler(d.Auth, d.CookieName, d.SecureCookie)
	r.Post("/v1/auth/login", ah.Login)
	r.Post("/v1/auth/logout", ah.Logout)

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.RequireSession(d.CookieName))
		r.Get("/v1/auth/me", ah.Me)

		// --- Registry ---
		rh := handler.NewRegistryHandler(d.Store)
		r.Route("/v1/owners", func(r chi.Router) {
			r.Post("/", rh.CreateOwner)
			r.Get("/", rh.ListOwners)
			r.Get("/{id}", rh.GetOwner)
			r.Patch("/{id}", rh.UpdateOwner)
			r.Delete("/{id}", rh.DeleteOwner)
		})
		r.Route("/v1/tenants", func(r chi.Router) {
			r.Post("/", rh.CreateTenant)
			r.Get("/", rh.ListTenants)
			r.Get("/{id}", rh.GetTenant)
			r.Patch("/{id}", rh.UpdateTenant)
			r.Delete("/{id}", rh.DeleteTenant)
		})
		r.Route("/v1/properties", func(r chi.Router) {
			r.Post("/", rh.CreateProperty)
			r.Get("/", rh.ListProperties)
			r.Get("/{id}", rh.GetProperty)
			r.Patch("/{id}", rh.UpdateProperty)
			r.Delete("/{id}", rh.DeleteProperty)
		})

		// --- Contracts ---
		ch := handler.NewContractHandler(d.Store, d.Generator, d.Engine, d.Renderer)
		r.Route("/v1/contracts", func(r chi.Router) {
			r.Post("/", ch.Create)
			r.Get("/", ch.List)
			r.Get("/{id}", ch.Get)
			r.Patch("/{id}", ch.Update)
			r.With(auth.RequireAdmin).Delete("/{id}", ch.Delete)
			r.Get("/{id}/payments", ch.Payments)
			r.Get("/{id}/document", ch.Document)
		})

		// --- Payments ---
		ph := handler.NewPaymentHandler(d.Store, d.Engine, d.Renderer)
		r.Route("/v1/payments", func(r chi.Router) {
			r.Get("/", ph.List)
			r.Get("/{id}", ph.Get)
			r.Patch("/{id}", ph.Update)
			r.Post("/{id}/pay", ph.Pay)
			r.Get("/{id}/quote", ph.Quote)
			r.Get("/{id}/receipt", ph.Receipt)
			r.With(auth.RequireAdmin).Delete("/{id}", ph.Delete)
		})
		r.With(auth.RequireAdmin).Get("/v1/deleted-payments", ph.ListDeleted)

		r.Get("/v1/dashboard", handler.NewDashboardHandler(d.Dashboard).Summary)
		if d.Address != nil {
			r.Get("/v1/addresses/{cep}", handler.NewAddressHandler(d.Address).Lookup)
		}
		if d.Activity != nil {
			acth := handler.NewActivityHandler(d.Activity)
			r.Get("/v1/activity/search", acth.Search)
			r.Get("/v1/activity/summary/{entity_type}/{entity_id}", acth.EntitySummary)
			r.Get("/v1/activity/{entity_type}/{entity_id}", acth.EntityFeed)
		}
		if d.Stream != nil {
			r.Method(http.MethodGet, "/v1/events/stream", d.Stream)
		}

		// --- Users ---
		uh := handler.NewUserHandler(d.Store, d.Auth)
		r.Route("/v1/users", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Post("/", uh.Create)
			r.Get("/", uh.List)
			r.Get("/{id}", uh.Get)
			r.Patch("/{id}", uh.Update)
			r.Delete("/{id}", uh.Delete)
		})
	})
	return r
}

// Run serves h until ctx is cancelled, then shuts down gracefully within
// cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg Config, h http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
