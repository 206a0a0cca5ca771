package rafflevrf

import (
	"context"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/ethereum/go-ethereum/common"
)

// Requester issues requests on behalf of one registered consumer.
type Requester struct {
	coordinator *Coordinator
	consumer    common.Address
}

// Requester returns a handle that bills requests as consumer.
func (c *Coordinator) Requester(consumer common.Address) *Requester {
	return &Requester{coordinator: c, consumer: consumer}
}

// RequestRandomness forwards params to the coordinator.
func (r *Requester) RequestRandomness(ctx context.Context, params raffletypes.RandomnessParams) (raffletypes.RequestID, error) {
	return r.coordinator.RequestRandomWords(
		ctx,
		r.consumer,
		params.KeyHash,
		params.SubscriptionID,
		params.RequestConfirmations,
		params.CallbackGasLimit,
		params.NumWords,
	)
}
