// types.go
package raffletypes

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// RaffleState represents the state of the live round.
type RaffleState string

// Enum constants for RaffleState
const (
	RaffleStateOpen        RaffleState = "OPEN"
	RaffleStateCalculating RaffleState = "CALCULATING"
)

// IsValid reports whether s is one of the known states.
func (s RaffleState) IsValid() bool {
	return s == RaffleStateOpen || s == RaffleStateCalculating
}

// RoundID identifies one OPEN→CALCULATING→OPEN cycle.
type RoundID uuid.UUID

// NewRoundID mints a fresh round identifier.
func NewRoundID() RoundID {
	return RoundID(uuid.New())
}

func (id RoundID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the id was never assigned.
func (id RoundID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText encodes the id in its canonical uuid form.
func (id RoundID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText parses a canonical uuid.
func (id *RoundID) UnmarshalText(data []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(data); err != nil {
		return err
	}
	*id = RoundID(u)
	return nil
}

// ParseRoundID parses a canonical uuid string.
func ParseRoundID(s string) (RoundID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoundID{}, err
	}
	return RoundID(u), nil
}

// RequestID identifies a randomness request. Zero means "no request".
type RequestID uint64

// IsZero reports whether no request is set.
func (id RequestID) IsZero() bool {
	return id == 0
}

// Participant is the address an entry is recorded for and a prize is paid to.
type Participant = common.Address

// RandomnessParams are forwarded untouched to the randomness coordinator.
type RandomnessParams struct {
	KeyHash              common.Hash `json:"key_hash" yaml:"key_hash"`
	SubscriptionID       uint64      `json:"subscription_id" yaml:"subscription_id"`
	RequestConfirmations uint16      `json:"request_confirmations" yaml:"request_confirmations"`
	CallbackGasLimit     uint32      `json:"callback_gas_limit" yaml:"callback_gas_limit"`
	NumWords             uint32      `json:"num_words" yaml:"num_words"`
}

// Round is the single live round plus the outcome of the previous one.
type Round struct {
	ID               RoundID       `json:"round_id"`
	State            RaffleState   `json:"state"`
	Players          []Participant `json:"players"`
	Pool             *big.Int      `json:"pool"`
	LastSettledAt    time.Time     `json:"last_settled_at"`
	PendingRequestID RequestID     `json:"pending_request_id"`
	RecentWinner     Participant   `json:"recent_winner"`
}

// NewRound returns the OPEN baseline for a round starting at openedAt.
func NewRound(openedAt time.Time) *Round {
	return &Round{
		ID:            NewRoundID(),
		State:         RaffleStateOpen,
		Players:       []Participant{},
		Pool:          new(big.Int),
		LastSettledAt: openedAt,
	}
}

// IsOpen checks if the round accepts entries.
func (r *Round) IsOpen() bool {
	return r.State == RaffleStateOpen
}

// IsCalculating checks if the round is waiting for randomness.
func (r *Round) IsCalculating() bool {
	return r.State == RaffleStateCalculating
}

// Clone returns a deep copy safe to hand out of the engine lock.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	out := *r
	out.Players = append([]Participant(nil), r.Players...)
	if out.Players == nil {
		out.Players = []Participant{}
	}
	out.Pool = new(big.Int)
	if r.Pool != nil {
		out.Pool.Set(r.Pool)
	}
	return &out
}

// Entry is one accepted entrance fee payment.
type Entry struct {
	RoundID     RoundID     `json:"round_id"`
	Seq         int         `json:"seq"`
	Participant Participant `json:"participant"`
	Amount      *big.Int    `json:"amount"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Settlement is the outcome of a successfully paid round.
type Settlement struct {
	RoundID   RoundID     `json:"round_id"`
	RequestID RequestID   `json:"request_id"`
	Winner    Participant `json:"winner"`
	Payout    *big.Int    `json:"payout"`
	SettledAt time.Time   `json:"settled_at"`
	NextRound RoundID     `json:"next_round_id"`
}

// PayoutRecord is one credited transfer, keyed by the request that settled it.
type PayoutRecord struct {
	RequestID RequestID   `json:"request_id"`
	Recipient Participant `json:"recipient"`
	Amount    *big.Int    `json:"amount"`
	CreatedAt time.Time   `json:"created_at"`
}

// UpkeepStatus is the result of an upkeep check.
type UpkeepStatus struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Upkeep check reasons.
const (
	UpkeepReasonNotOpen            = "not_open"
	UpkeepReasonIntervalNotElapsed = "interval_not_elapsed"
	UpkeepReasonEmptyPool          = "empty_pool"
	UpkeepReasonNoPlayers          = "no_players"
)
