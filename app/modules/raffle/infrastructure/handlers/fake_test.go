package rafflehandlers

import (
	"context"
	"math/big"
	"time"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// ------------------------
// Fake Service
// ------------------------

type FakeService struct {
	trace []string

	EnterFn             func(ctx context.Context, participant raffletypes.Participant, amount *big.Int) (int, error)
	PerformUpkeepFn     func(ctx context.Context) (raffletypes.RequestID, error)
	FulfillRandomnessFn func(ctx context.Context, requestID raffletypes.RequestID, value *big.Int) (*raffletypes.Settlement, error)
}

var _ raffleservice.Service = (*FakeService)(nil)

func NewFakeService() *FakeService {
	return &FakeService{trace: []string{}}
}

func (f *FakeService) Trace() []string {
	return f.trace
}

func (f *FakeService) Restore(ctx context.Context) error {
	f.trace = append(f.trace, "Restore")
	return nil
}

func (f *FakeService) Enter(ctx context.Context, participant raffletypes.Participant, amount *big.Int) (int, error) {
	f.trace = append(f.trace, "Enter")
	if f.EnterFn != nil {
		return f.EnterFn(ctx, participant, amount)
	}
	return 1, nil
}

func (f *FakeService) CheckUpkeep(ctx context.Context) raffletypes.UpkeepStatus {
	f.trace = append(f.trace, "CheckUpkeep")
	return raffletypes.UpkeepStatus{}
}

func (f *FakeService) PerformUpkeep(ctx context.Context) (raffletypes.RequestID, error) {
	f.trace = append(f.trace, "PerformUpkeep")
	if f.PerformUpkeepFn != nil {
		return f.PerformUpkeepFn(ctx)
	}
	return 1, nil
}

func (f *FakeService) FulfillRandomness(ctx context.Context, requestID raffletypes.RequestID, value *big.Int) (*raffletypes.Settlement, error) {
	f.trace = append(f.trace, "FulfillRandomness")
	if f.FulfillRandomnessFn != nil {
		return f.FulfillRandomnessFn(ctx, requestID, value)
	}
	return &raffletypes.Settlement{RequestID: requestID}, nil
}

func (f *FakeService) FulfillRandomWords(ctx context.Context, requestID raffletypes.RequestID, words []*big.Int) error {
	f.trace = append(f.trace, "FulfillRandomWords")
	return nil
}

func (f *FakeService) EntranceFee() *big.Int                         { return big.NewInt(0) }
func (f *FakeService) Interval() time.Duration                       { return 0 }
func (f *FakeService) RandomnessParams() raffletypes.RandomnessParams { return raffletypes.RandomnessParams{} }
func (f *FakeService) State() raffletypes.RaffleState                { return raffletypes.RaffleStateOpen }
func (f *FakeService) Player(int) (raffletypes.Participant, error)   { return raffletypes.Participant{}, nil }
func (f *FakeService) NumPlayers() int                               { return 0 }
func (f *FakeService) LatestTimestamp() time.Time                    { return time.Time{} }
func (f *FakeService) RecentWinner() raffletypes.Participant         { return raffletypes.Participant{} }
func (f *FakeService) Snapshot() *raffletypes.Round                  { return nil }
