package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Black-And-White-Club/raffle-bot/app/modules/raffle"
	rafflemigrations "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/database"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/eventbus"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"github.com/Black-And-White-Club/raffle-bot/config"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 10 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// App holds the process-wide components.
type App struct {
	Config        *config.Config
	Observability *observability.Observability
	DB            *bun.DB
	EventBus      eventbus.EventBus
	Router        *message.Router
	HTTPServer    *http.Server
	Modules       *Modules

	wg sync.WaitGroup
}

// Modules lists the domain modules.
type Modules struct {
	RaffleModule *raffle.Module
}

// NewApp builds observability, storage, the bus and every module from cfg.
// Resources acquired before a failure are released.
func NewApp(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Observability, err = observability.Init(ctx, observability.Config{
		ServiceName:     cfg.Observability.ServiceName,
		Environment:     cfg.Observability.Environment,
		Version:         cfg.Observability.Version,
		MetricsAddress:  cfg.Observability.MetricsAddress,
		OTLPEndpoint:    cfg.Observability.OTLPEndpoint,
		TraceSampleRate: cfg.Observability.TraceSampleRate,
	})
	if err != nil {
		return app, fmt.Errorf("failed to initialize observability: %w", err)
	}
	logger := app.Observability.Provider.Logger

	app.DB, err = database.Open(ctx, database.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.DatabaseDSN(),
	})
	if err != nil {
		return app, fmt.Errorf("failed to open database: %w", err)
	}
	if err = database.Migrate(ctx, app.DB, logger, map[string]*migrate.Migrations{
		"raffle": rafflemigrations.Migrations,
	}); err != nil {
		return app, fmt.Errorf("failed to migrate database: %w", err)
	}

	app.EventBus, err = eventbus.New(ctx, eventbus.Config{
		URL:           cfg.NATS.URL,
		StreamName:    cfg.NATS.StreamName,
		Subjects:      []string{"raffle.>"},
		DurablePrefix: cfg.NATS.DurablePrefix,
	}, logger)
	if err != nil {
		return app, fmt.Errorf("failed to create event bus: %w", err)
	}

	app.Router, err = message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return app, fmt.Errorf("failed to create Watermill router: %w", err)
	}
	app.Router.AddMiddleware(
		middleware.CorrelationID,
		middleware.Recoverer,
	)

	var httpRouter chi.Router
	if cfg.HTTP.Address != "" {
		r := chi.NewRouter()
		r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
		r.Get("/healthz", app.handleHealth)
		httpRouter = r
		app.HTTPServer = &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	raffleModule, err := raffle.NewRaffleModule(ctx, cfg, app.Observability, app.DB, app.EventBus, app.Router, httpRouter)
	if err != nil {
		return app, fmt.Errorf("failed to initialize raffle module: %w", err)
	}
	app.Modules = &Modules{RaffleModule: raffleModule}

	return app, nil
}

// Run serves until ctx is canceled or a component fails.
func (app *App) Run(ctx context.Context) error {
	logger := app.Observability.Provider.Logger
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.Router.Run(ctx); err != nil {
			return fmt.Errorf("watermill router: %w", err)
		}
		return nil
	})

	app.wg.Add(1)
	go app.Modules.RaffleModule.Run(ctx, &app.wg)

	if app.HTTPServer != nil {
		g.Go(func() error {
			logger.InfoContext(ctx, "Serving HTTP API", slog.String("address", app.HTTPServer.Addr))
			if err := app.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.HTTPServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	app.wg.Wait()
	return err
}

// HealthCheck pings the database and asks each module for its own health.
func (app *App) HealthCheck(ctx context.Context) error {
	var errs []error
	if app.DB != nil {
		if err := app.DB.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if app.Modules != nil && app.Modules.RaffleModule != nil {
		if err := app.Modules.RaffleModule.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("raffle: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := app.HealthCheck(ctx); err != nil {
		app.Observability.Provider.Logger.WarnContext(ctx, "Health check failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Close releases everything NewApp acquired, in reverse order.
func (app *App) Close() error {
	var errs []error
	if app.Modules != nil && app.Modules.RaffleModule != nil {
		if err := app.Modules.RaffleModule.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.Router != nil {
		if err := app.Router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close router: %w", err))
		}
	}
	if app.EventBus != nil {
		if err := app.EventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if app.Observability != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Observability.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
		}
	}
	return errors.Join(errs...)
}
