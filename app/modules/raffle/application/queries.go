package raffleservice

import (
	"fmt"
	"math/big"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

func (s *RaffleService) EntranceFee() *big.Int {
	return new(big.Int).Set(s.entranceFee)
}

func (s *RaffleService) Interval() time.Duration {
	return s.interval
}

// RandomnessParams returns the parameters forwarded on every request.
func (s *RaffleService) RandomnessParams() raffletypes.RandomnessParams {
	return s.params
}

func (s *RaffleService) State() raffletypes.RaffleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round.State
}

// Player returns the participant of the index-th entry in the current round.
func (s *RaffleService) Player(index int) (raffletypes.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.round.Players) {
		return raffletypes.Participant{}, fmt.Errorf("%w: %d of %d", ErrPlayerIndexOutOfRange, index, len(s.round.Players))
	}
	return s.round.Players[index], nil
}

func (s *RaffleService) NumPlayers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.round.Players)
}

func (s *RaffleService) LatestTimestamp() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round.LastSettledAt
}

func (s *RaffleService) RecentWinner() raffletypes.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round.RecentWinner
}

// Snapshot returns a copy of the live round.
func (s *RaffleService) Snapshot() *raffletypes.Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round.Clone()
}
