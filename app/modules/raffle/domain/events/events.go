package raffleevents

import (
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// Stream name for the raffle module.
const RaffleStreamName = "raffle"

// Notifications emitted by the engine.
const (
	EntryRecordedV1       = "raffle.entry.recorded.v1"
	RandomnessRequestedV1 = "raffle.randomness.requested.v1"
	WinnerPickedV1        = "raffle.winner.picked.v1"
	PayoutFailedV1        = "raffle.payout.failed.v1"
)

// Commands consumed by the raffle router and their replies.
const (
	EntryRequestedV1      = "raffle.entry.requested.v1"
	UpkeepRequestedV1     = "raffle.upkeep.requested.v1"
	RandomnessFulfilledV1 = "raffle.randomness.fulfilled.v1"
	EntryAcceptedV1       = "raffle.entry.accepted.v1"
	EntryRejectedV1       = "raffle.entry.rejected.v1"
	UpkeepPerformedV1     = "raffle.upkeep.performed.v1"
	UpkeepRejectedV1      = "raffle.upkeep.rejected.v1"
	RandomnessAcceptedV1  = "raffle.randomness.accepted.v1"
	RandomnessRejectedV1  = "raffle.randomness.rejected.v1"
)

// Amounts travel as base-10 strings; they do not fit a JSON number.

// EntryRecordedPayloadV1 is published after an entry is accepted.
type EntryRecordedPayloadV1 struct {
	RoundID     raffletypes.RoundID     `json:"round_id"`
	Participant raffletypes.Participant `json:"participant"`
	Amount      string                  `json:"amount"`
	PlayerCount int                     `json:"player_count"`
	RecordedAt  time.Time               `json:"recorded_at"`
}

// RandomnessRequestedPayloadV1 is published when the round locks.
type RandomnessRequestedPayloadV1 struct {
	RoundID     raffletypes.RoundID   `json:"round_id"`
	RequestID   raffletypes.RequestID `json:"request_id"`
	RequestedAt time.Time             `json:"requested_at"`
}

// WinnerPickedPayloadV1 is published after a successful settlement.
type WinnerPickedPayloadV1 struct {
	RoundID      raffletypes.RoundID     `json:"round_id"`
	NextRoundID  raffletypes.RoundID     `json:"next_round_id"`
	RequestID    raffletypes.RequestID   `json:"request_id"`
	Winner       raffletypes.Participant `json:"winner"`
	PayoutAmount string                  `json:"payout_amount"`
	SettledAt    time.Time               `json:"settled_at"`
}

// PayoutFailedPayloadV1 is published when the payout collaborator rejects a transfer.
// The round stays CALCULATING until an operator intervenes.
type PayoutFailedPayloadV1 struct {
	RoundID   raffletypes.RoundID     `json:"round_id"`
	RequestID raffletypes.RequestID   `json:"request_id"`
	Winner    raffletypes.Participant `json:"winner"`
	Amount    string                  `json:"amount"`
	Reason    string                  `json:"reason"`
}

// EntryRequestedPayloadV1 asks the engine to record an entry.
type EntryRequestedPayloadV1 struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

// EntryAcceptedPayloadV1 is the reply to an accepted entry request.
type EntryAcceptedPayloadV1 struct {
	Participant raffletypes.Participant `json:"participant"`
	Amount      string                  `json:"amount"`
	PlayerCount int                     `json:"player_count"`
}

// EntryRejectedPayloadV1 is the reply to a rejected entry request.
type EntryRejectedPayloadV1 struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
}

// UpkeepRequestedPayloadV1 asks the engine to run check+perform.
type UpkeepRequestedPayloadV1 struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// UpkeepPerformedPayloadV1 is the reply when the round locked.
type UpkeepPerformedPayloadV1 struct {
	RequestID raffletypes.RequestID `json:"request_id"`
}

// UpkeepRejectedPayloadV1 is the reply when upkeep was not needed or failed.
type UpkeepRejectedPayloadV1 struct {
	Reason string `json:"reason"`
}

// RandomnessFulfilledPayloadV1 carries an oracle delivery.
type RandomnessFulfilledPayloadV1 struct {
	RequestID   raffletypes.RequestID `json:"request_id"`
	RandomWords []string              `json:"random_words"`
}

// RandomnessAcceptedPayloadV1 is the reply when a delivery settled the round.
type RandomnessAcceptedPayloadV1 struct {
	RequestID raffletypes.RequestID   `json:"request_id"`
	Winner    raffletypes.Participant `json:"winner"`
}

// RandomnessRejectedPayloadV1 is the reply when a delivery was refused.
type RandomnessRejectedPayloadV1 struct {
	RequestID raffletypes.RequestID `json:"request_id"`
	Reason    string                `json:"reason"`
}
