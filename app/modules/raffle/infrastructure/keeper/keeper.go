package rafflekeeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
)

// Upkeep outcomes recorded per poll.
const (
	OutcomeSkipped   = "skipped"
	OutcomePerformed = "performed"
	OutcomeRaced     = "raced"
	OutcomeFailed    = "failed"
)

// Engine is the part of the raffle engine a keeper drives.
type Engine interface {
	CheckUpkeep(ctx context.Context) raffletypes.UpkeepStatus
	PerformUpkeep(ctx context.Context) (raffletypes.RequestID, error)
}

// Keeper polls the engine and locks the round once upkeep is due.
type Keeper struct {
	engine  Engine
	every   time.Duration
	logger  *slog.Logger
	metrics observability.RaffleMetrics
}

// NewKeeper creates a keeper polling every d. A non-positive d means one minute.
func NewKeeper(engine Engine, every time.Duration, logger *slog.Logger, metrics observability.RaffleMetrics) *Keeper {
	if every <= 0 {
		every = time.Minute
	}
	if metrics == nil {
		metrics = observability.NoOpRaffleMetrics{}
	}
	return &Keeper{engine: engine, every: every, logger: logger, metrics: metrics}
}

// Upkeep performs upkeep if the engine reports it is needed. It returns the
// new request id, or zero when nothing was done. Losing a race with another
// caller between check and perform is not an error.
func (k *Keeper) Upkeep(ctx context.Context) (raffletypes.RequestID, error) {
	status := k.engine.CheckUpkeep(ctx)
	if !status.Ready {
		k.metrics.RecordUpkeepRun(ctx, OutcomeSkipped)
		k.logger.DebugContext(ctx, "Upkeep not needed", slog.String("reason", status.Reason))
		return 0, nil
	}

	requestID, err := k.engine.PerformUpkeep(ctx)
	switch {
	case err == nil:
		k.metrics.RecordUpkeepRun(ctx, OutcomePerformed)
		k.logger.InfoContext(ctx, "Upkeep performed", slog.Uint64("request_id", uint64(requestID)))
		return requestID, nil
	case errors.Is(err, raffleservice.ErrUpkeepNotReady):
		k.metrics.RecordUpkeepRun(ctx, OutcomeRaced)
		k.logger.DebugContext(ctx, "Upkeep no longer needed", slog.Any("error", err))
		return 0, nil
	default:
		k.metrics.RecordUpkeepRun(ctx, OutcomeFailed)
		return 0, err
	}
}

// Run polls until ctx is done. Failures are logged and retried on the next tick.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "Starting upkeep keeper", slog.Duration("every", k.every))
	ticker := time.NewTicker(k.every)
	defer ticker.Stop()

	for {
		if _, err := k.Upkeep(ctx); err != nil {
			k.logger.ErrorContext(ctx, "Upkeep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			k.logger.InfoContext(ctx, "Upkeep keeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
