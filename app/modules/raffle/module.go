package raffle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleapi "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/api"
	rafflehandlers "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/handlers"
	rafflekeeper "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/keeper"
	rafflepayout "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/payout"
	rafflequeue "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/queue"
	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	rafflerouter "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/router"
	rafflevrf "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/vrf"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/eventbus"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"github.com/Black-And-White-Club/raffle-bot/config"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"
	"golang.org/x/time/rate"
)

// Module represents the raffle module.
type Module struct {
	EventBus      eventbus.EventBus
	RaffleService *raffleservice.RaffleService
	RaffleRouter  *rafflerouter.RaffleRouter
	Ledger        *rafflepayout.Ledger
	Coordinator   *rafflevrf.Coordinator
	Keeper        *rafflekeeper.Keeper
	Queue         rafflequeue.QueueService

	config        *config.Config
	observability *observability.Observability
	cancelFunc    context.CancelFunc
}

// NewRaffleModule wires the engine to its store, payout ledger, randomness
// source, bus handlers, keeper and (when httpRouter is set) the public API.
func NewRaffleModule(
	ctx context.Context,
	cfg *config.Config,
	obs *observability.Observability,
	db *bun.DB,
	eventBus eventbus.EventBus,
	router *message.Router,
	httpRouter chi.Router,
) (*Module, error) {
	logger := obs.Provider.Logger.With(slog.String("module", "raffle"))
	tracer := obs.Provider.Tracer
	metrics := obs.RaffleMetrics

	logger.InfoContext(ctx, "raffle.NewRaffleModule called",
		slog.String("network", cfg.Raffle.Network),
		slog.String("vrf_mode", cfg.VRF.Mode),
		slog.String("keeper_mode", cfg.Keeper.Mode),
	)

	repo := raffledb.NewRepository(db)
	ledger := rafflepayout.NewLedger(db, cfg.PayoutLimitAmount(), logger)
	params := cfg.RandomnessParams()

	var (
		coordinator *rafflevrf.Coordinator
		requester   raffleservice.RandomnessCoordinator
	)
	switch cfg.VRF.Mode {
	case config.VRFModeLocal:
		c, err := rafflevrf.NewCoordinator(rafflevrf.Config{
			FulfillmentDelay: cfg.VRF.FulfillmentDelay,
			FulfillmentFee:   cfg.FulfillmentFeeAmount(),
			Seed:             []byte(cfg.VRF.Seed),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create randomness coordinator: %w", err)
		}
		params.SubscriptionID = c.CreateSubscription(cfg.Consumer())
		if err := c.FundSubscription(params.SubscriptionID, config.DevSubscriptionFunding); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to fund subscription: %w", err)
		}
		coordinator = c
		requester = c.Requester(cfg.Consumer())
	default:
		requester = rafflevrf.NewExternalRequester(logger)
	}

	service, err := raffleservice.NewRaffleService(
		raffleservice.Config{
			EntranceFee:      cfg.EntranceFeeAmount(),
			Interval:         cfg.Raffle.Interval,
			RandomnessParams: params,
		},
		repo, requester, ledger, eventBus, logger, metrics, tracer,
	)
	if err != nil {
		closeCoordinator(coordinator)
		return nil, fmt.Errorf("failed to create raffle service: %w", err)
	}
	if err := service.Restore(ctx); err != nil {
		closeCoordinator(coordinator)
		return nil, fmt.Errorf("failed to restore raffle round: %w", err)
	}

	if coordinator != nil {
		if err := coordinator.AddConsumer(params.SubscriptionID, cfg.Consumer(), service); err != nil {
			closeCoordinator(coordinator)
			return nil, fmt.Errorf("failed to register raffle consumer: %w", err)
		}
		if round := service.Snapshot(); !round.PendingRequestID.IsZero() {
			// The in-process coordinator does not survive restarts.
			logger.WarnContext(ctx, "Restored round awaits a request the local coordinator no longer holds",
				slog.Uint64("request_id", uint64(round.PendingRequestID)),
			)
		}
	}

	raffleRouter := rafflerouter.NewRaffleRouter(
		logger, router, eventBus, eventBus, tracer, obs.HandlerMetrics, obs.Provider.Registry,
	)
	if err := raffleRouter.Configure(ctx, rafflehandlers.NewRaffleHandlers(service, logger, tracer)); err != nil {
		closeCoordinator(coordinator)
		return nil, fmt.Errorf("failed to configure raffle router: %w", err)
	}

	module := &Module{
		EventBus:      eventBus,
		RaffleService: service,
		RaffleRouter:  raffleRouter,
		Ledger:        ledger,
		Coordinator:   coordinator,
		config:        cfg,
		observability: obs,
	}

	if cfg.Keeper.Mode != config.KeeperModeOff {
		module.Keeper = rafflekeeper.NewKeeper(service, cfg.Keeper.PollInterval, logger, metrics)
	}
	if cfg.Keeper.Mode == config.KeeperModeRiver {
		queue, err := rafflequeue.NewService(ctx, db, logger, cfg.Postgres.DSN, cfg.Keeper.PollInterval, metrics, module.Keeper)
		if err != nil {
			closeCoordinator(coordinator)
			return nil, fmt.Errorf("failed to create upkeep queue: %w", err)
		}
		module.Queue = queue
	}

	if httpRouter != nil {
		sources := raffleapi.Sources{History: repo, Ledger: ledger}
		if coordinator != nil {
			sources.Proofs = coordinator
		}
		if module.Queue != nil {
			sources.Scheduler = module.Queue
		}
		raffleapi.Mount(httpRouter, raffleapi.NewHandlers(service, sources, logger, tracer), raffleapi.RouteConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RateLimit:      rate.Limit(cfg.HTTP.RateLimit),
			RateBurst:      cfg.HTTP.RateBurst,
		})
	}

	return module, nil
}

// Run drives upkeep until ctx is canceled.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.observability.Provider.Logger
	logger.InfoContext(ctx, "Starting raffle module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	switch {
	case m.Queue != nil:
		if err := m.Queue.Start(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to start upkeep queue", slog.Any("error", err))
			return
		}
	case m.Keeper != nil:
		if err := m.Keeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "Keeper stopped", slog.Any("error", err))
		}
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Raffle module goroutine stopped")
}

// HealthCheck reports whether the upkeep queue is reachable. Modules without
// a queue are always healthy.
func (m *Module) HealthCheck(ctx context.Context) error {
	if m.Queue == nil {
		return nil
	}
	if err := m.Queue.HealthCheck(ctx); err != nil {
		return fmt.Errorf("upkeep queue: %w", err)
	}
	return nil
}

// Close stops the raffle module and cleans up resources.
func (m *Module) Close() error {
	logger := m.observability.Provider.Logger
	logger.Info("Stopping raffle module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	var errs []error
	if m.Queue != nil {
		if err := m.Queue.Stop(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("error stopping upkeep queue: %w", err))
		}
	}
	if m.Coordinator != nil {
		if err := m.Coordinator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing coordinator: %w", err))
		}
	}
	if m.RaffleRouter != nil {
		if err := m.RaffleRouter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing RaffleRouter: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("Error stopping raffle module", slog.Any("error", err))
		return err
	}
	logger.Info("Raffle module stopped")
	return nil
}

func closeCoordinator(c *rafflevrf.Coordinator) {
	if c != nil {
		_ = c.Close()
	}
}
