package rafflevrf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// ExternalRequester assigns request ids for an oracle that runs outside the
// process. The oracle learns of each request from the randomness-requested
// notification and answers on the randomness-fulfilled topic.
type ExternalRequester struct {
	mu     sync.Mutex
	last   raffletypes.RequestID
	now    func() time.Time
	logger *slog.Logger
}

func NewExternalRequester(logger *slog.Logger) *ExternalRequester {
	return &ExternalRequester{now: time.Now, logger: logger}
}

// RequestRandomness returns an id that increases across restarts: the wall
// clock in nanoseconds, or the previous id plus one if the clock has not moved.
func (r *ExternalRequester) RequestRandomness(ctx context.Context, params raffletypes.RandomnessParams) (raffletypes.RequestID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := raffletypes.RequestID(r.now().UnixNano())
	if id <= r.last {
		id = r.last + 1
	}
	r.last = id

	r.logger.InfoContext(ctx, "Randomness requested from external oracle",
		slog.Uint64("request_id", uint64(id)),
		slog.String("key_hash", params.KeyHash.Hex()),
		slog.Uint64("subscription_id", params.SubscriptionID),
		slog.Uint64("num_words", uint64(params.NumWords)),
	)
	return id, nil
}
