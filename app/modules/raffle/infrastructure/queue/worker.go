package rafflequeue

import (
	"context"
	"log/slog"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/riverqueue/river"
)

// Upkeeper runs one upkeep attempt.
type Upkeeper interface {
	Upkeep(ctx context.Context) (raffletypes.RequestID, error)
}

// UpkeepWorker runs upkeep jobs against the engine.
type UpkeepWorker struct {
	river.WorkerDefaults[UpkeepJob]
	upkeeper Upkeeper
	logger   *slog.Logger
}

func NewUpkeepWorker(upkeeper Upkeeper, logger *slog.Logger) *UpkeepWorker {
	return &UpkeepWorker{upkeeper: upkeeper, logger: logger}
}

// Work returns the upkeep error so River retries with backoff.
func (w *UpkeepWorker) Work(ctx context.Context, job *river.Job[UpkeepJob]) error {
	requestID, err := w.upkeeper.Upkeep(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Upkeep job failed",
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.Any("error", err),
		)
		return err
	}
	if !requestID.IsZero() {
		w.logger.InfoContext(ctx, "Upkeep job locked round",
			slog.Int64("job_id", job.ID),
			slog.Uint64("request_id", uint64(requestID)),
		)
	}
	return nil
}
