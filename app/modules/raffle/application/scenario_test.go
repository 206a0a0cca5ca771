package raffleservice

import (
	"context"
	"math/big"
	"testing"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRaffleService_RoundLifecycle walks one full round: a rejected entry, an
// accepted one, an early check, lock, a forged delivery, and settlement.
func TestRaffleService_RoundLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100, 60*time.Second)

	_, err := env.svc.Enter(ctx, playerA, big.NewInt(50))
	require.ErrorIs(t, err, ErrInsufficientFee)

	_, err = env.svc.Enter(ctx, playerA, big.NewInt(100))
	require.NoError(t, err)
	snap := env.svc.Snapshot()
	assert.Equal(t, []raffletypes.Participant{playerA}, snap.Players)
	assert.Equal(t, int64(100), snap.Pool.Int64())

	env.clock.Advance(30 * time.Second)
	assert.False(t, env.svc.CheckUpkeep(ctx).Ready)

	env.clock.Advance(30 * time.Second)
	assert.True(t, env.svc.CheckUpkeep(ctx).Ready)
	r1, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)
	assert.Equal(t, raffletypes.RaffleStateCalculating, env.svc.State())

	before := env.svc.Snapshot()
	_, err = env.svc.FulfillRandomness(ctx, r1+1, big.NewInt(7))
	require.ErrorIs(t, err, ErrUnknownRequest)
	assert.Equal(t, before, env.svc.Snapshot())

	settlement, err := env.svc.FulfillRandomness(ctx, r1, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, playerA, settlement.Winner)
	require.Len(t, env.payout.Calls, 1)
	assert.Equal(t, int64(100), env.payout.Calls[0].Amount.Int64())

	snap = env.svc.Snapshot()
	assert.Equal(t, raffletypes.RaffleStateOpen, snap.State)
	assert.Empty(t, snap.Players)
	assert.Zero(t, snap.Pool.Sign())
}

// TestRaffleService_RandomWalk drives random operation sequences and checks the
// round invariants after every step.
func TestRaffleService_RandomWalk(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		faker := gofakeit.New(seed)
		env := newTestEnv(t, 10, 10*time.Second)
		ctx := context.Background()

		players := make([]raffletypes.Participant, 5)
		for i := range players {
			players[i] = common.BytesToAddress([]byte(faker.LetterN(20)))
		}

		expectedPool := new(big.Int)
		for step := 0; step < 200; step++ {
			before := env.svc.Snapshot()

			switch faker.Number(0, 4) {
			case 0, 1:
				amount := big.NewInt(int64(faker.Number(0, 30)))
				_, err := env.svc.Enter(ctx, players[faker.Number(0, len(players)-1)], amount)
				switch {
				case before.IsCalculating():
					require.ErrorIs(t, err, ErrNotOpen)
					assert.Equal(t, before, env.svc.Snapshot())
				case amount.Cmp(env.svc.EntranceFee()) < 0:
					require.ErrorIs(t, err, ErrInsufficientFee)
					assert.Equal(t, before, env.svc.Snapshot())
				default:
					require.NoError(t, err)
					expectedPool.Add(expectedPool, amount)
				}
			case 2:
				env.clock.Advance(time.Duration(faker.Number(0, 8)) * time.Second)
			case 3:
				first := env.svc.CheckUpkeep(ctx)
				assert.Equal(t, first, env.svc.CheckUpkeep(ctx))
				_, err := env.svc.PerformUpkeep(ctx)
				if first.Ready {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, ErrUpkeepNotReady)
					assert.Equal(t, before, env.svc.Snapshot())
				}
			case 4:
				id := before.PendingRequestID
				if faker.Bool() {
					id += raffletypes.RequestID(faker.Number(1, 3))
				}
				value := new(big.Int).SetUint64(faker.Uint64())
				settlement, err := env.svc.FulfillRandomness(ctx, id, value)
				if before.IsCalculating() && id == before.PendingRequestID {
					require.NoError(t, err)
					index := new(big.Int).Mod(value, big.NewInt(int64(len(before.Players)))).Int64()
					assert.Equal(t, before.Players[index], settlement.Winner)
					assert.Zero(t, expectedPool.Cmp(settlement.Payout))
					expectedPool = new(big.Int)
				} else {
					require.ErrorIs(t, err, ErrUnknownRequest)
					assert.Equal(t, before, env.svc.Snapshot())
				}
			}

			after := env.svc.Snapshot()
			calculating := after.IsCalculating()
			assert.Equal(t, calculating, !after.PendingRequestID.IsZero() && len(after.Players) > 0,
				"seed %d step %d: state/request/players disagree", seed, step)
			assert.Zero(t, expectedPool.Cmp(after.Pool), "seed %d step %d: pool drifted", seed, step)
		}
	}
}

func TestRaffleService_SettlementIsDeterministic(t *testing.T) {
	value := big.NewInt(1234567)
	var winners []raffletypes.Participant
	for i := 0; i < 3; i++ {
		env := newTestEnv(t, 100, time.Minute)
		id := env.lock(t, playerA, playerB, playerC, playerA)
		settlement, err := env.svc.FulfillRandomness(context.Background(), id, value)
		require.NoError(t, err)
		winners = append(winners, settlement.Winner)
	}
	// 1234567 mod 4 = 3
	assert.Equal(t, []raffletypes.Participant{playerA, playerA, playerA}, winners)
}
