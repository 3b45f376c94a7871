// Package app wires the configured components together. Both the server
// and the admin CLI build their dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/address"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/config"
	"github.com/rentaldesk/rentals/internal/dashboard"
	"github.com/rentaldesk/rentals/internal/document"
	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/eventbus"
	"github.com/rentaldesk/rentals/internal/installment"
	"github.com/rentaldesk/rentals/internal/metrics"
	"github.com/rentaldesk/rentals/internal/payment"
	"github.com/rentaldesk/rentals/internal/server"
	"github.com/rentaldesk/rentals/internal/store"
)

// App holds the running components.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     store.Store
	Activity  activity.Store
	Bus       *eventbus.Bus
	Stream    *eventbus.StreamHub
	Metrics   *metrics.Metrics
	Generator *installment.Generator
	Engine    *payment.Engine
	Dashboard *dashboard.Service
	Auth      *auth.Service
	Address   *address.Client

	closers []func() error
}

// New opens the stores, starts the event bus and builds the services.
// The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Bus = eventbus.New(cfg.Events.Buffer, logger)
	a.Bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	a.Stream = eventbus.NewStreamHub(cfg.HTTP.AllowedOrigins, logger)
	a.Bus.Subscribe("stream", a.Stream)
	if cfg.Events.AMQP.Enabled {
		pub, err := eventbus.DialAMQP(ctx, eventbus.AMQPConfig{
			URL:               cfg.Events.AMQP.URL,
			Exchange:          cfg.Events.AMQP.Exchange,
			RoutingPrefix:     cfg.Events.AMQP.RoutingPrefix,
			MaxRetries:        3,
			ReconnectInterval: 2 * time.Second,
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Bus.Subscribe("amqp", pub)
		a.closers = append(a.closers, pub.Close)
	}
	a.Bus.Start(ctx)
	a.closers = append(a.closers, func() error { a.Bus.Stop(); return nil })

	recorder := event.NewActivityRecorder(a.Activity)
	recorder.SetPublisher(a.Bus)

	fee, monthly, err := cfg.Payments.Rates()
	if err != nil {
		a.Close()
		return nil, err
	}
	policy := payment.LateFeePolicy{FeeRate: fee, MonthlyRate: monthly, DaysPerMonth: cfg.Payments.DaysPerMonth}

	a.Generator = installment.NewGenerator(a.Store, recorder, a.Metrics, logger)
	a.Engine = payment.NewEngine(a.Store, recorder, a.Metrics, logger, payment.WithPolicy(policy))
	a.Dashboard = dashboard.NewService(a.Store, time.Now)

	sessions, err := a.sessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Auth = auth.NewService(a.Store, sessions, cfg.Sessions.TTL.Std(), logger)
	if creds := cfg.Auth.BootstrapAdmin; creds.Enabled() {
		if _, err := a.Auth.Bootstrap(ctx, creds.Username, creds.Password); err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrapping admin: %w", err)
		}
	}

	a.Address = address.NewClient(address.Config{
		BaseURL:   cfg.Address.BaseURL,
		Timeout:   cfg.Address.Timeout.Std(),
		CacheTTL:  cfg.Address.CacheTTL.Std(),
		CacheSize: cfg.Address.CacheSize,
	}, nil, logger)
	a.closers = append(a.closers, func() error { a.Address.Stop(); return nil })
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	db := a.Config.Database
	if db.Driver == "memory" {
		a.Store = store.NewMemoryStore()
		a.Activity = activity.NewMemoryStore()
		return nil
	}
	s, err := store.Open(db.Driver, db.DSN, a.Logger)
	if err != nil {
		return err
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)
	feed := activity.NewSQLStore(s.Driver())
	a.Activity = feed
	if db.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		if err := feed.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) sessionStore(ctx context.Context) (auth.SessionStore, error) {
	sc := a.Config.Sessions
	if sc.Backend != "redis" {
		return auth.NewMemorySessionStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     sc.Redis.Addr,
		Password: sc.Redis.Password,
		DB:       sc.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", sc.Redis.Addr, err)
	}
	a.closers = append(a.closers, client.Close)
	return auth.NewRedisSessionStore(client, sc.Redis.Prefix), nil
}

// Deps returns the router dependencies over the App's services.
func (a *App) Deps() server.Deps {
	return server.Deps{
		Store:          a.Store,
		Activity:       a.Activity,
		Generator:      a.Generator,
		Engine:         a.Engine,
		Dashboard:      a.Dashboard,
		Auth:           a.Auth,
		Address:        a.Address,
		Renderer:       document.TextRenderer{},
		Stream:         a.Stream,
		Metrics:        a.Metrics,
		CookieName:     a.Config.Sessions.CookieName,
		SecureCookie:   a.Config.Env == "prod",
		AllowedOrigins: a.Config.HTTP.AllowedOrigins,
	}
}

// ServerConfig returns the listener settings.
func (a *App) ServerConfig() server.Config {
	h := a.Config.HTTP
	return server.Config{
		Addr:            h.Addr,
		ReadTimeout:     h.ReadTimeout.Std(),
		WriteTimeout:    h.WriteTimeout.Std(),
		ShutdownTimeout: h.ShutdownTimeout.Std(),
	}
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
