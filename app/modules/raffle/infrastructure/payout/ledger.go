package rafflepayout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	// ErrInvalidAmount indicates a nil or negative transfer.
	ErrInvalidAmount = errors.New("invalid payout amount")
	// ErrInvalidRecipient indicates a transfer to the zero address.
	ErrInvalidRecipient = errors.New("invalid payout recipient")
	// ErrLimitExceeded indicates a transfer above the configured ceiling.
	ErrLimitExceeded = errors.New("payout exceeds limit")
	// ErrInvalidRequest indicates a transfer without a randomness request id.
	ErrInvalidRequest = errors.New("invalid payout request")
	// ErrConflictingPayout indicates the request already paid a different
	// recipient or amount.
	ErrConflictingPayout = errors.New("request already paid out differently")
)

// Ledger pays winners by crediting an internal balance. The payout record and
// the balance update commit together or not at all.
type Ledger struct {
	db     *bun.DB
	limit  *big.Int
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a ledger. A nil or zero limit disables the ceiling.
func NewLedger(db *bun.DB, limit *big.Int, logger *slog.Logger) *Ledger {
	l := &Ledger{db: db, logger: logger, now: time.Now}
	if limit != nil && limit.Sign() > 0 {
		l.limit = new(big.Int).Set(limit)
	}
	return l
}

// Payout credits amount to to once per requestID. A repeat with the same
// recipient and amount is a no-op.
func (l *Ledger) Payout(ctx context.Context, requestID raffletypes.RequestID, to raffletypes.Participant, amount *big.Int) error {
	if requestID.IsZero() {
		return ErrInvalidRequest
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if l.limit != nil && amount.Cmp(l.limit) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrLimitExceeded, amount, l.limit)
	}

	now := l.now().UTC()
	account := to.Hex()
	repeated := false

	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing raffledb.Payout
		err := tx.NewSelect().Model(&existing).Where("request_id = ?", int64(requestID)).Scan(ctx)
		switch {
		case err == nil:
			if existing.Recipient != account || existing.Amount != amount.String() {
				return fmt.Errorf("%w: request %d paid %s to %s", ErrConflictingPayout, requestID, existing.Amount, existing.Recipient)
			}
			repeated = true
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("select payout for request %d: %w", requestID, err)
		}

		record := &raffledb.Payout{
			ID:        uuid.NewString(),
			RequestID: int64(requestID),
			Recipient: account,
			Amount:    amount.String(),
			CreatedAt: now,
		}
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		balance, err := selectBalance(ctx, tx, account)
		if err != nil {
			return err
		}
		balance.Add(balance, amount)

		row := &raffledb.Balance{Account: account, Amount: balance.String(), UpdatedAt: now}
		_, err = tx.NewInsert().
			Model(row).
			On("CONFLICT (account) DO UPDATE").
			Set("amount = EXCLUDED.amount").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if repeated {
		l.logger.InfoContext(ctx, "Payout already credited for request",
			slog.Uint64("request_id", uint64(requestID)),
			slog.String("recipient", account),
		)
		return nil
	}
	l.logger.InfoContext(ctx, "Payout credited",
		slog.Uint64("request_id", uint64(requestID)),
		slog.String("recipient", account),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Payouts returns up to limit recorded transfers, newest first.
func (l *Ledger) Payouts(ctx context.Context, limit int) ([]raffletypes.PayoutRecord, error) {
	var rows []raffledb.Payout
	err := l.db.NewSelect().Model(&rows).Order("created_at DESC", "request_id DESC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}

	out := make([]raffletypes.PayoutRecord, 0, len(rows))
	for _, row := range rows {
		amount, ok := new(big.Int).SetString(row.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("payout for request %d is malformed: %q", row.RequestID, row.Amount)
		}
		out = append(out, raffletypes.PayoutRecord{
			RequestID: raffletypes.RequestID(row.RequestID),
			Recipient: common.HexToAddress(row.Recipient),
			Amount:    amount,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Balance returns the credited total for account.
func (l *Ledger) Balance(ctx context.Context, account raffletypes.Participant) (*big.Int, error) {
	return selectBalance(ctx, l.db, account.Hex())
}

func selectBalance(ctx context.Context, idb bun.IDB, account string) (*big.Int, error) {
	var row raffledb.Balance
	err := idb.NewSelect().Model(&row).Where("account = ?", account).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("select balance for %s: %w", account, err)
	}
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("balance for %s is malformed: %q", account, row.Amount)
	}
	return amount, nil
}
