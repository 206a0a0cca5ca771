package raffleservice

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// Enter records one entry for participant. The whole amount joins the pool.
// It returns the number of entries in the round after this one.
func (s *RaffleService) Enter(ctx context.Context, participant raffletypes.Participant, amount *big.Int) (int, error) {
	var count int
	err := s.withTelemetry(ctx, "Enter", func(ctx context.Context) error {
		entry, err := s.enter(ctx, participant, amount)
		if err != nil {
			return err
		}
		count = entry.Seq + 1

		s.logger.InfoContext(ctx, "Entry recorded",
			slog.String("round_id", entry.RoundID.String()),
			slog.String("participant", participant.Hex()),
			slog.String("amount", entry.Amount.String()),
			slog.Int("player_count", count),
		)
		s.metrics.RecordEntry(ctx, entry.Amount)
		s.notify(ctx, raffleevents.EntryRecordedV1, &raffleevents.EntryRecordedPayloadV1{
			RoundID:     entry.RoundID,
			Participant: participant,
			Amount:      entry.Amount.String(),
			PlayerCount: count,
			RecordedAt:  entry.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *RaffleService) enter(ctx context.Context, participant raffletypes.Participant, amount *big.Int) (raffletypes.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.round.IsOpen() {
		return raffletypes.Entry{}, ErrNotOpen
	}
	if amount == nil || amount.Cmp(s.entranceFee) < 0 {
		return raffletypes.Entry{}, fmt.Errorf("%w: need at least %s", ErrInsufficientFee, s.entranceFee)
	}

	next := s.round.Clone()
	entry := raffletypes.Entry{
		RoundID:     next.ID,
		Seq:         len(next.Players),
		Participant: participant,
		Amount:      new(big.Int).Set(amount),
		CreatedAt:   s.now(),
	}
	next.Players = append(next.Players, participant)
	next.Pool.Add(next.Pool, amount)

	if err := s.store.RecordEntry(ctx, next, entry); err != nil {
		return raffletypes.Entry{}, fmt.Errorf("failed to record entry: %w", err)
	}

	s.round = next
	s.recordState(ctx)
	return entry, nil
}
