package raffledb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"
)

type RaffleDBImpl struct {
	DB *bun.DB
}

// NewRepository wraps db.
func NewRepository(db *bun.DB) *RaffleDBImpl {
	return &RaffleDBImpl{DB: db}
}

// LoadCurrentRound returns the newest unsettled round with its players, or nil
// when no round has been stored yet.
func (db *RaffleDBImpl) LoadCurrentRound(ctx context.Context) (*raffletypes.Round, error) {
	var row Round
	err := db.DB.NewSelect().
		Model(&row).
		Where("settled = ?", false).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select current round: %w", err)
	}

	entries, err := db.selectEntries(ctx, db.DB, row.ID)
	if err != nil {
		return nil, err
	}
	return toDomainRound(&row, entries)
}

func (db *RaffleDBImpl) SaveRound(ctx context.Context, round *raffletypes.Round) error {
	if err := upsertRound(ctx, db.DB, toDBRound(round)); err != nil {
		return fmt.Errorf("save round %s: %w", round.ID, err)
	}
	return nil
}

// RecordEntry inserts entry and updates the round header in one transaction.
func (db *RaffleDBImpl) RecordEntry(ctx context.Context, round *raffletypes.Round, entry raffletypes.Entry) error {
	return db.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := upsertRound(ctx, tx, toDBRound(round)); err != nil {
			return fmt.Errorf("update round %s: %w", round.ID, err)
		}
		row := &Entry{
			RoundID:     entry.RoundID.String(),
			Seq:         entry.Seq,
			Participant: entry.Participant.Hex(),
			Amount:      entry.Amount.String(),
			CreatedAt:   entry.CreatedAt.UTC(),
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert entry %d for round %s: %w", entry.Seq, entry.RoundID, err)
		}
		return nil
	})
}

// RecordSettlement marks the settled round and stores next in one transaction.
func (db *RaffleDBImpl) RecordSettlement(ctx context.Context, settlement raffletypes.Settlement, next *raffletypes.Round) error {
	return db.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*Round)(nil)).
			Set("settled = ?", true).
			Set("winner = ?", settlement.Winner.Hex()).
			Set("payout = ?", settlement.Payout.String()).
			Set("request_id = ?", int64(settlement.RequestID)).
			Set("settled_at = ?", settlement.SettledAt.UTC()).
			Set("next_round_id = ?", settlement.NextRound.String()).
			Set("updated_at = ?", settlement.SettledAt.UTC()).
			Where("id = ?", settlement.RoundID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("settle round %s: %w", settlement.RoundID, err)
		}
		if err := upsertRound(ctx, tx, toDBRound(next)); err != nil {
			return fmt.Errorf("open round %s: %w", next.ID, err)
		}
		return nil
	})
}

func (db *RaffleDBImpl) GetRound(ctx context.Context, id raffletypes.RoundID) (*raffletypes.Round, error) {
	var row Round
	err := db.DB.NewSelect().Model(&row).Where("id = ?", id.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select round %s: %w", id, err)
	}
	entries, err := db.selectEntries(ctx, db.DB, row.ID)
	if err != nil {
		return nil, err
	}
	return toDomainRound(&row, entries)
}

func (db *RaffleDBImpl) ListEntries(ctx context.Context, id raffletypes.RoundID) ([]raffletypes.Entry, error) {
	rows, err := db.selectEntries(ctx, db.DB, id.String())
	if err != nil {
		return nil, err
	}
	out := make([]raffletypes.Entry, 0, len(rows))
	for _, r := range rows {
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("entry %d of round %s has malformed amount %q", r.Seq, r.RoundID, r.Amount)
		}
		out = append(out, raffletypes.Entry{
			RoundID:     id,
			Seq:         r.Seq,
			Participant: common.HexToAddress(r.Participant),
			Amount:      amount,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// ListSettlements returns the most recent settlements, newest first.
func (db *RaffleDBImpl) ListSettlements(ctx context.Context, limit int) ([]raffletypes.Settlement, error) {
	var rows []Round
	q := db.DB.NewSelect().
		Model(&rows).
		Where("settled = ?", true).
		OrderExpr("settled_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select settlements: %w", err)
	}

	out := make([]raffletypes.Settlement, 0, len(rows))
	for i := range rows {
		s, err := toDomainSettlement(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (db *RaffleDBImpl) selectEntries(ctx context.Context, idb bun.IDB, roundID string) ([]Entry, error) {
	var rows []Entry
	err := idb.NewSelect().
		Model(&rows).
		Where("round_id = ?", roundID).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select entries for round %s: %w", roundID, err)
	}
	return rows, nil
}

func upsertRound(ctx context.Context, idb bun.IDB, row *Round) error {
	_, err := idb.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("pool = EXCLUDED.pool").
		Set("last_settled_at = EXCLUDED.last_settled_at").
		Set("pending_request_id = EXCLUDED.pending_request_id").
		Set("recent_winner = EXCLUDED.recent_winner").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func toDBRound(r *raffletypes.Round) *Round {
	now := time.Now().UTC()
	row := &Round{
		ID:               r.ID.String(),
		State:            string(r.State),
		Pool:             "0",
		LastSettledAt:    r.LastSettledAt.UTC(),
		PendingRequestID: int64(r.PendingRequestID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if r.Pool != nil {
		row.Pool = r.Pool.String()
	}
	if r.RecentWinner != (common.Address{}) {
		row.RecentWinner = r.RecentWinner.Hex()
	}
	return row
}

func toDomainRound(row *Round, entries []Entry) (*raffletypes.Round, error) {
	id, err := raffletypes.ParseRoundID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("round has malformed id %q: %w", row.ID, err)
	}
	pool, ok := new(big.Int).SetString(row.Pool, 10)
	if !ok {
		return nil, fmt.Errorf("round %s has malformed pool %q", row.ID, row.Pool)
	}
	state := raffletypes.RaffleState(row.State)
	if !state.IsValid() {
		return nil, fmt.Errorf("round %s has unknown state %q", row.ID, row.State)
	}

	players := make([]raffletypes.Participant, 0, len(entries))
	for _, e := range entries {
		players = append(players, common.HexToAddress(e.Participant))
	}

	round := &raffletypes.Round{
		ID:               id,
		State:            state,
		Players:          players,
		Pool:             pool,
		LastSettledAt:    row.LastSettledAt,
		PendingRequestID: raffletypes.RequestID(row.PendingRequestID),
	}
	if row.RecentWinner != "" {
		round.RecentWinner = common.HexToAddress(row.RecentWinner)
	}
	return round, nil
}

func toDomainSettlement(row *Round) (raffletypes.Settlement, error) {
	id, err := raffletypes.ParseRoundID(row.ID)
	if err != nil {
		return raffletypes.Settlement{}, fmt.Errorf("round has malformed id %q: %w", row.ID, err)
	}
	var next raffletypes.RoundID
	if row.NextRoundID != "" {
		if next, err = raffletypes.ParseRoundID(row.NextRoundID); err != nil {
			return raffletypes.Settlement{}, fmt.Errorf("round %s has malformed next id: %w", row.ID, err)
		}
	}
	payout, ok := new(big.Int).SetString(row.Payout, 10)
	if !ok {
		return raffletypes.Settlement{}, fmt.Errorf("round %s has malformed payout %q", row.ID, row.Payout)
	}
	return raffletypes.Settlement{
		RoundID:   id,
		RequestID: raffletypes.RequestID(row.RequestID),
		Winner:    common.HexToAddress(row.Winner),
		Payout:    payout,
		SettledAt: row.SettledAt,
		NextRound: next,
	}, nil
}
