package raffleservice

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// FulfillRandomness settles the locked round with randomValue. The winner is
// players[randomValue mod len(players)]; the modulo bias is negligible for
// 256-bit values.
//
// A payout failure leaves the round CALCULATING with the request still
// pending. It is never retried automatically.
func (s *RaffleService) FulfillRandomness(
	ctx context.Context,
	requestID raffletypes.RequestID,
	randomValue *big.Int,
) (*raffletypes.Settlement, error) {
	var settlement *raffletypes.Settlement
	err := s.withTelemetry(ctx, "FulfillRandomness", func(ctx context.Context) error {
		result, failed, err := s.fulfill(ctx, requestID, randomValue)
		if failed != nil {
			s.notify(ctx, raffleevents.PayoutFailedV1, failed)
		}
		if err != nil {
			return err
		}
		settlement = result

		s.logger.InfoContext(ctx, "Winner picked",
			slog.String("round_id", result.RoundID.String()),
			slog.String("next_round_id", result.NextRound.String()),
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("winner", result.Winner.Hex()),
			slog.String("payout", result.Payout.String()),
		)
		s.metrics.RecordSettlement(ctx, result.Payout)
		s.notify(ctx, raffleevents.WinnerPickedV1, &raffleevents.WinnerPickedPayloadV1{
			RoundID:      result.RoundID,
			NextRoundID:  result.NextRound,
			RequestID:    requestID,
			Winner:       result.Winner,
			PayoutAmount: result.Payout.String(),
			SettledAt:    result.SettledAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// FulfillRandomWords is the oracle callback shape. Only the first word is used.
func (s *RaffleService) FulfillRandomWords(ctx context.Context, requestID raffletypes.RequestID, randomWords []*big.Int) error {
	if len(randomWords) == 0 {
		return fmt.Errorf("%w: no random words for request %d", ErrInvalidRandomness, requestID)
	}
	_, err := s.FulfillRandomness(ctx, requestID, randomWords[0])
	return err
}

func (s *RaffleService) fulfill(
	ctx context.Context,
	requestID raffletypes.RequestID,
	randomValue *big.Int,
) (*raffletypes.Settlement, *raffleevents.PayoutFailedPayloadV1, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.round.IsCalculating() || requestID.IsZero() || requestID != s.round.PendingRequestID || len(s.round.Players) == 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	if randomValue == nil {
		return nil, nil, fmt.Errorf("%w: nil value for request %d", ErrInvalidRandomness, requestID)
	}
	if randomValue.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative value for request %d", ErrInvalidRandomness, requestID)
	}

	current := s.round
	n := big.NewInt(int64(len(current.Players)))
	index := new(big.Int).Mod(randomValue, n).Int64()
	winner := current.Players[index]
	amount := new(big.Int).Set(current.Pool)

	if err := s.payout.Payout(ctx, requestID, winner, amount); err != nil {
		s.metrics.RecordPayoutFailure(ctx)
		s.logger.ErrorContext(ctx, "Payout failed; round stays locked",
			slog.String("round_id", current.ID.String()),
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("winner", winner.Hex()),
			slog.String("amount", amount.String()),
			slog.Any("error", err),
		)
		failed := &raffleevents.PayoutFailedPayloadV1{
			RoundID:   current.ID,
			RequestID: requestID,
			Winner:    winner,
			Amount:    amount.String(),
			Reason:    err.Error(),
		}
		return nil, failed, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	settledAt := s.now()
	next := raffletypes.NewRound(settledAt)
	next.RecentWinner = winner

	settlement := &raffletypes.Settlement{
		RoundID:   current.ID,
		RequestID: requestID,
		Winner:    winner,
		Payout:    amount,
		SettledAt: settledAt,
		NextRound: next.ID,
	}

	// Funds have moved: advance in memory even if the write fails. After a
	// restart the round comes back CALCULATING; a redelivery of the same request
	// finds the payout already recorded and only retries this write.
	if err := s.store.RecordSettlement(ctx, *settlement, next); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist settlement after payout",
			slog.String("round_id", current.ID.String()),
			slog.String("next_round_id", next.ID.String()),
			slog.Any("error", err),
		)
	}

	s.round = next
	s.recordState(ctx)
	return settlement, nil, nil
}
