package raffleservice

import (
	"context"
	"math/big"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// RandomnessCoordinator issues randomness requests. It must return a unique id
// synchronously and deliver the value later through FulfillRandomness; it must
// never call back into the engine before RequestRandomness has returned.
type RandomnessCoordinator interface {
	RequestRandomness(ctx context.Context, params raffletypes.RandomnessParams) (raffletypes.RequestID, error)
}

// PayoutService moves the pool to the winner. Either the funds move or it fails
// with no partial transfer. Payouts are keyed by requestID: repeating a request
// that already paid the same recipient and amount succeeds without moving funds
// again, and a conflicting repeat fails.
type PayoutService interface {
	Payout(ctx context.Context, requestID raffletypes.RequestID, to raffletypes.Participant, amount *big.Int) error
}

// RoundStore persists the live round. Every write happens under the engine lock
// before the in-memory state changes.
type RoundStore interface {
	// LoadCurrentRound returns the latest unsettled round, or nil when none exists.
	LoadCurrentRound(ctx context.Context) (*raffletypes.Round, error)
	// SaveRound upserts the round header (state, pool, clock, pending request).
	SaveRound(ctx context.Context, round *raffletypes.Round) error
	// RecordEntry stores the entry and the updated round header atomically.
	RecordEntry(ctx context.Context, round *raffletypes.Round, entry raffletypes.Entry) error
	// RecordSettlement closes the settled round and opens next atomically.
	RecordSettlement(ctx context.Context, settlement raffletypes.Settlement, next *raffletypes.Round) error
}

// EventPublisher publishes engine notifications. Delivery is best effort.
type EventPublisher interface {
	PublishJSON(ctx context.Context, topic string, payload any) error
}
