package rafflehandlers

import (
	"context"
	"log/slog"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
)

// HandleEntryRequested records an entry and replies with accepted or rejected.
func (h *RaffleHandlers) HandleEntryRequested(ctx context.Context, payload *raffleevents.EntryRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	reject := func(reason string) []handlerwrapper.Result {
		return single(raffleevents.EntryRejectedV1, &raffleevents.EntryRejectedPayloadV1{
			Participant: payload.Participant,
			Amount:      payload.Amount,
			Reason:      reason,
		})
	}

	participant, err := parseParticipant(payload.Participant)
	if err != nil {
		return reject(err.Error()), nil
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		return reject(err.Error()), nil
	}

	count, err := h.service.Enter(ctx, participant, amount)
	if err != nil {
		if raffleservice.IsDomainError(err) {
			return reject(err.Error()), nil
		}
		return nil, err
	}

	h.logger.InfoContext(ctx, "Entry request accepted",
		slog.String("participant", participant.Hex()),
		slog.Int("player_count", count),
	)
	return single(raffleevents.EntryAcceptedV1, &raffleevents.EntryAcceptedPayloadV1{
		Participant: participant,
		Amount:      amount.String(),
		PlayerCount: count,
	}), nil
}
