package rafflehandlers

import (
	"context"
	"errors"
	"log/slog"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
)

// HandleRandomnessFulfilled settles the round with the first delivered word.
// A payout failure is acknowledged: the engine stays CALCULATING and has
// already announced the failure, so redelivery would only repeat it.
func (h *RaffleHandlers) HandleRandomnessFulfilled(ctx context.Context, payload *raffleevents.RandomnessFulfilledPayloadV1) ([]handlerwrapper.Result, error) {
	reject := func(reason string) []handlerwrapper.Result {
		return single(raffleevents.RandomnessRejectedV1, &raffleevents.RandomnessRejectedPayloadV1{
			RequestID: payload.RequestID,
			Reason:    reason,
		})
	}

	if len(payload.RandomWords) == 0 {
		return reject(raffleservice.ErrInvalidRandomness.Error()), nil
	}
	value, err := parseAmount(payload.RandomWords[0])
	if err != nil || value.Sign() < 0 {
		return reject(raffleservice.ErrInvalidRandomness.Error()), nil
	}

	settlement, err := h.service.FulfillRandomness(ctx, payload.RequestID, value)
	if err != nil {
		if raffleservice.IsDomainError(err) || errors.Is(err, raffleservice.ErrPayoutFailed) {
			return reject(err.Error()), nil
		}
		return nil, err
	}

	h.logger.InfoContext(ctx, "Randomness delivery settled round",
		slog.Uint64("request_id", uint64(payload.RequestID)),
		slog.String("winner", settlement.Winner.Hex()),
	)
	return single(raffleevents.RandomnessAcceptedV1, &raffleevents.RandomnessAcceptedPayloadV1{
		RequestID: payload.RequestID,
		Winner:    settlement.Winner,
	}), nil
}
