package rafflehandlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const testPlayer = "0x00000000000000000000000000000000000000a1"

func newTestHandlers(svc *FakeService) Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRaffleHandlers(svc, logger, noop.NewTracerProvider().Tracer("test"))
}

func TestRaffleHandlers_HandleEntryRequested(t *testing.T) {
	tests := []struct {
		name      string
		payload   *raffleevents.EntryRequestedPayloadV1
		enterFn   func(context.Context, raffletypes.Participant, *big.Int) (int, error)
		wantTopic string
		wantErr   bool
		wantTrace []string
	}{
		{
			name:    "accepted",
			payload: &raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: "100"},
			enterFn: func(_ context.Context, p raffletypes.Participant, amount *big.Int) (int, error) {
				if p != common.HexToAddress(testPlayer) || amount.Int64() != 100 {
					return 0, fmt.Errorf("unexpected call %s %s", p.Hex(), amount)
				}
				return 3, nil
			},
			wantTopic: raffleevents.EntryAcceptedV1,
			wantTrace: []string{"Enter"},
		},
		{
			name:      "malformed participant",
			payload:   &raffleevents.EntryRequestedPayloadV1{Participant: "alice", Amount: "100"},
			wantTopic: raffleevents.EntryRejectedV1,
			wantTrace: []string{},
		},
		{
			name:      "zero address",
			payload:   &raffleevents.EntryRequestedPayloadV1{Participant: "0x0000000000000000000000000000000000000000", Amount: "100"},
			wantTopic: raffleevents.EntryRejectedV1,
			wantTrace: []string{},
		},
		{
			name:      "malformed amount",
			payload:   &raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: "1e18"},
			wantTopic: raffleevents.EntryRejectedV1,
			wantTrace: []string{},
		},
		{
			name:    "insufficient fee",
			payload: &raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: "1"},
			enterFn: func(context.Context, raffletypes.Participant, *big.Int) (int, error) {
				return 0, fmt.Errorf("%w: need at least 100", raffleservice.ErrInsufficientFee)
			},
			wantTopic: raffleevents.EntryRejectedV1,
			wantTrace: []string{"Enter"},
		},
		{
			name:    "not open",
			payload: &raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: "100"},
			enterFn: func(context.Context, raffletypes.Participant, *big.Int) (int, error) {
				return 0, raffleservice.ErrNotOpen
			},
			wantTopic: raffleevents.EntryRejectedV1,
			wantTrace: []string{"Enter"},
		},
		{
			name:    "store failure is retried",
			payload: &raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: "100"},
			enterFn: func(context.Context, raffletypes.Participant, *big.Int) (int, error) {
				return 0, errors.New("database unavailable")
			},
			wantErr:   true,
			wantTrace: []string{"Enter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFakeService()
			svc.EnterFn = tt.enterFn
			h := newTestHandlers(svc)

			results, err := h.HandleEntryRequested(context.Background(), tt.payload)
			assert.Equal(t, tt.wantTrace, svc.Trace())
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, results)
				return
			}
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)
		})
	}
}

func TestRaffleHandlers_HandleEntryRequested_AcceptedPayload(t *testing.T) {
	svc := NewFakeService()
	svc.EnterFn = func(context.Context, raffletypes.Participant, *big.Int) (int, error) { return 2, nil }

	results, err := newTestHandlers(svc).HandleEntryRequested(context.Background(),
		&raffleevents.EntryRequestedPayloadV1{Participant: testPlayer, Amount: " 250 "})
	require.NoError(t, err)

	accepted, ok := results[0].Payload.(*raffleevents.EntryAcceptedPayloadV1)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(testPlayer), accepted.Participant)
	assert.Equal(t, "250", accepted.Amount)
	assert.Equal(t, 2, accepted.PlayerCount)
}

func TestRaffleHandlers_HandleUpkeepRequested(t *testing.T) {
	tests := []struct {
		name      string
		performFn func(context.Context) (raffletypes.RequestID, error)
		wantTopic string
		wantErr   bool
	}{
		{
			name:      "performed",
			performFn: func(context.Context) (raffletypes.RequestID, error) { return 9, nil },
			wantTopic: raffleevents.UpkeepPerformedV1,
		},
		{
			name: "not ready",
			performFn: func(context.Context) (raffletypes.RequestID, error) {
				return 0, fmt.Errorf("%w: %s", raffleservice.ErrUpkeepNotReady, raffletypes.UpkeepReasonNoPlayers)
			},
			wantTopic: raffleevents.UpkeepRejectedV1,
		},
		{
			name: "coordinator failure is retried",
			performFn: func(context.Context) (raffletypes.RequestID, error) {
				return 0, errors.New("coordinator unreachable")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFakeService()
			svc.PerformUpkeepFn = tt.performFn

			results, err := newTestHandlers(svc).HandleUpkeepRequested(context.Background(), &raffleevents.UpkeepRequestedPayloadV1{RequestedBy: "test"})
			assert.Equal(t, []string{"PerformUpkeep"}, svc.Trace())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)
		})
	}
}

func TestRaffleHandlers_HandleRandomnessFulfilled(t *testing.T) {
	winner := common.HexToAddress(testPlayer)

	tests := []struct {
		name      string
		words     []string
		fulfillFn func(context.Context, raffletypes.RequestID, *big.Int) (*raffletypes.Settlement, error)
		wantTopic string
		wantErr   bool
		wantTrace []string
	}{
		{
			name:  "settled",
			words: []string{"115792089237316195423570985008687907853269984665640564039457584007913129639935", "7"},
			fulfillFn: func(_ context.Context, id raffletypes.RequestID, v *big.Int) (*raffletypes.Settlement, error) {
				if v.BitLen() != 256 {
					return nil, fmt.Errorf("expected the first word, got %s", v)
				}
				return &raffletypes.Settlement{RequestID: id, Winner: winner}, nil
			},
			wantTopic: raffleevents.RandomnessAcceptedV1,
			wantTrace: []string{"FulfillRandomness"},
		},
		{
			name:      "no words",
			wantTopic: raffleevents.RandomnessRejectedV1,
			wantTrace: []string{},
		},
		{
			name:      "negative word",
			words:     []string{"-5"},
			wantTopic: raffleevents.RandomnessRejectedV1,
			wantTrace: []string{},
		},
		{
			name:  "unknown request",
			words: []string{"5"},
			fulfillFn: func(context.Context, raffletypes.RequestID, *big.Int) (*raffletypes.Settlement, error) {
				return nil, raffleservice.ErrUnknownRequest
			},
			wantTopic: raffleevents.RandomnessRejectedV1,
			wantTrace: []string{"FulfillRandomness"},
		},
		{
			name:  "payout failure is acknowledged",
			words: []string{"5"},
			fulfillFn: func(context.Context, raffletypes.RequestID, *big.Int) (*raffletypes.Settlement, error) {
				return nil, fmt.Errorf("%w: %w", raffleservice.ErrPayoutFailed, errors.New("limit"))
			},
			wantTopic: raffleevents.RandomnessRejectedV1,
			wantTrace: []string{"FulfillRandomness"},
		},
		{
			name:  "unexpected failure is retried",
			words: []string{"5"},
			fulfillFn: func(context.Context, raffletypes.RequestID, *big.Int) (*raffletypes.Settlement, error) {
				return nil, errors.New("boom")
			},
			wantErr:   true,
			wantTrace: []string{"FulfillRandomness"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFakeService()
			svc.FulfillRandomnessFn = tt.fulfillFn

			results, err := newTestHandlers(svc).HandleRandomnessFulfilled(context.Background(),
				&raffleevents.RandomnessFulfilledPayloadV1{RequestID: 4, RandomWords: tt.words})
			assert.Equal(t, tt.wantTrace, svc.Trace())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.wantTopic, results[0].Topic)
		})
	}
}
