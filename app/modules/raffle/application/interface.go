package raffleservice

import (
	"context"
	"math/big"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// Service defines the interface for the raffle engine.
type Service interface {
	// Restore loads the persisted round, or persists the initial one.
	Restore(ctx context.Context) error

	Enter(ctx context.Context, participant raffletypes.Participant, amount *big.Int) (int, error)
	CheckUpkeep(ctx context.Context) raffletypes.UpkeepStatus
	PerformUpkeep(ctx context.Context) (raffletypes.RequestID, error)
	FulfillRandomness(ctx context.Context, requestID raffletypes.RequestID, randomValue *big.Int) (*raffletypes.Settlement, error)
	FulfillRandomWords(ctx context.Context, requestID raffletypes.RequestID, randomWords []*big.Int) error

	EntranceFee() *big.Int
	Interval() time.Duration
	RandomnessParams() raffletypes.RandomnessParams
	State() raffletypes.RaffleState
	Player(index int) (raffletypes.Participant, error)
	NumPlayers() int
	LatestTimestamp() time.Time
	RecentWinner() raffletypes.Participant
	Snapshot() *raffletypes.Round
}
