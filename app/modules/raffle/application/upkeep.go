package raffleservice

import (
	"context"
	"fmt"
	"log/slog"

	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"go.opentelemetry.io/otel/attribute"
)

// CheckUpkeep reports whether the round can be locked for a draw. It never
// changes state.
func (s *RaffleService) CheckUpkeep(ctx context.Context) raffletypes.UpkeepStatus {
	_, span := s.tracer.Start(ctx, "CheckUpkeep")
	defer span.End()

	s.mu.RLock()
	status := s.checkUpkeepLocked()
	s.mu.RUnlock()

	span.SetAttributes(
		attribute.Bool("ready", status.Ready),
		attribute.String("reason", status.Reason),
	)
	return status
}

// checkUpkeepLocked evaluates the four upkeep conditions in order. Callers hold mu.
func (s *RaffleService) checkUpkeepLocked() raffletypes.UpkeepStatus {
	switch {
	case !s.round.IsOpen():
		return raffletypes.UpkeepStatus{Reason: raffletypes.UpkeepReasonNotOpen}
	case s.now().Sub(s.round.LastSettledAt) < s.interval:
		return raffletypes.UpkeepStatus{Reason: raffletypes.UpkeepReasonIntervalNotElapsed}
	case s.round.Pool.Sign() <= 0:
		return raffletypes.UpkeepStatus{Reason: raffletypes.UpkeepReasonEmptyPool}
	case len(s.round.Players) == 0:
		return raffletypes.UpkeepStatus{Reason: raffletypes.UpkeepReasonNoPlayers}
	}
	return raffletypes.UpkeepStatus{Ready: true}
}

// PerformUpkeep locks the round and asks the coordinator for randomness.
// If the request itself fails the round stays OPEN.
func (s *RaffleService) PerformUpkeep(ctx context.Context) (raffletypes.RequestID, error) {
	var requestID raffletypes.RequestID
	err := s.withTelemetry(ctx, "PerformUpkeep", func(ctx context.Context) error {
		round, err := s.performUpkeep(ctx)
		if err != nil {
			return err
		}
		requestID = round.PendingRequestID

		s.logger.InfoContext(ctx, "Randomness requested",
			slog.String("round_id", round.ID.String()),
			slog.Uint64("request_id", uint64(requestID)),
			slog.Int("player_count", len(round.Players)),
			slog.String("pool", round.Pool.String()),
		)
		s.notify(ctx, raffleevents.RandomnessRequestedV1, &raffleevents.RandomnessRequestedPayloadV1{
			RoundID:     round.ID,
			RequestID:   requestID,
			RequestedAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return requestID, nil
}

func (s *RaffleService) performUpkeep(ctx context.Context) (*raffletypes.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.checkUpkeepLocked(); !status.Ready {
		return nil, fmt.Errorf("%w: %s", ErrUpkeepNotReady, status.Reason)
	}

	requestID, err := s.coordinator.RequestRandomness(ctx, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to request randomness: %w", err)
	}
	if requestID.IsZero() {
		return nil, fmt.Errorf("coordinator returned an empty request id")
	}

	next := s.round.Clone()
	next.State = raffletypes.RaffleStateCalculating
	next.PendingRequestID = requestID

	if err := s.store.SaveRound(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save locked round (request %d left orphaned): %w", requestID, err)
	}

	s.round = next
	s.recordState(ctx)
	return next.Clone(), nil
}
