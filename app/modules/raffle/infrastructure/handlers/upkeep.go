package rafflehandlers

import (
	"context"
	"log/slog"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
)

// HandleUpkeepRequested runs check+perform on demand.
func (h *RaffleHandlers) HandleUpkeepRequested(ctx context.Context, payload *raffleevents.UpkeepRequestedPayloadV1) ([]handlerwrapper.Result, error) {
	requestID, err := h.service.PerformUpkeep(ctx)
	if err != nil {
		if raffleservice.IsDomainError(err) {
			return single(raffleevents.UpkeepRejectedV1, &raffleevents.UpkeepRejectedPayloadV1{
				Reason: err.Error(),
			}), nil
		}
		return nil, err
	}

	h.logger.InfoContext(ctx, "Upkeep request performed",
		slog.String("requested_by", payload.RequestedBy),
		slog.Uint64("request_id", uint64(requestID)),
	)
	return single(raffleevents.UpkeepPerformedV1, &raffleevents.UpkeepPerformedPayloadV1{
		RequestID: requestID,
	}), nil
}
