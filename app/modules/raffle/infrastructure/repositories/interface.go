package raffledb

import (
	"context"
	"errors"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// ErrNotFound is returned when a requested round does not exist.
var ErrNotFound = errors.New("raffle round not found")

// Repository persists raffle rounds and their entries.
//
// The first four methods back the engine's RoundStore port; every write is
// atomic.
type Repository interface {
	LoadCurrentRound(ctx context.Context) (*raffletypes.Round, error)
	SaveRound(ctx context.Context, round *raffletypes.Round) error
	RecordEntry(ctx context.Context, round *raffletypes.Round, entry raffletypes.Entry) error
	RecordSettlement(ctx context.Context, settlement raffletypes.Settlement, next *raffletypes.Round) error

	GetRound(ctx context.Context, id raffletypes.RoundID) (*raffletypes.Round, error)
	ListEntries(ctx context.Context, id raffletypes.RoundID) ([]raffletypes.Entry, error)
	ListSettlements(ctx context.Context, limit int) ([]raffletypes.Settlement, error)
}
