package raffledb

import (
	"time"

	"github.com/uptrace/bun"
)

// Round is one row per raffle round. The live round is the newest row with
// settled = false. Amounts are base-10 strings so both dialects store them
// without precision loss.
type Round struct {
	bun.BaseModel    `bun:"table:raffle_rounds,alias:rr"`
	ID               string    `bun:"id,pk,type:varchar(36)"`
	State            string    `bun:"state,notnull,type:varchar(16)"`
	Pool             string    `bun:"pool,notnull,default:'0'"`
	LastSettledAt    time.Time `bun:"last_settled_at,notnull"`
	PendingRequestID int64     `bun:"pending_request_id,notnull,default:0"`
	RecentWinner     string    `bun:"recent_winner,nullzero,type:varchar(42)"`
	Settled          bool      `bun:"settled,notnull,default:false"`
	Winner           string    `bun:"winner,nullzero,type:varchar(42)"`
	Payout           string    `bun:"payout,nullzero"`
	RequestID        int64     `bun:"request_id,nullzero"`
	SettledAt        time.Time `bun:"settled_at,nullzero"`
	NextRoundID      string    `bun:"next_round_id,nullzero,type:varchar(36)"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Entry is one accepted entry; Seq is its position in the round's player list.
type Entry struct {
	bun.BaseModel `bun:"table:raffle_entries,alias:re"`
	ID            int64     `bun:"id,pk,autoincrement"`
	RoundID       string    `bun:"round_id,notnull,type:varchar(36),unique:raffle_entries_round_seq"`
	Seq           int       `bun:"seq,notnull,unique:raffle_entries_round_seq"`
	Participant   string    `bun:"participant,notnull,type:varchar(42)"`
	Amount        string    `bun:"amount,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// Payout is one ledger transfer to a winner. RequestID is unique so a
// randomness request can pay out at most once.
type Payout struct {
	bun.BaseModel `bun:"table:raffle_payouts,alias:rp"`
	ID            string    `bun:"id,pk,type:varchar(36)"`
	RequestID     int64     `bun:"request_id,notnull,unique"`
	Recipient     string    `bun:"recipient,notnull,type:varchar(42)"`
	Amount        string    `bun:"amount,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// Balance is the credited total for one account.
type Balance struct {
	bun.BaseModel `bun:"table:raffle_balances,alias:rb"`
	Account       string    `bun:"account,pk,type:varchar(42)"`
	Amount        string    `bun:"amount,notnull,default:'0'"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}
