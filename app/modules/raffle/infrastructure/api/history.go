package raffleapi

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	rafflequeue "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/queue"
	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// HistorySource reads settled rounds and their entries.
type HistorySource interface {
	ListSettlements(ctx context.Context, limit int) ([]raffletypes.Settlement, error)
	GetRound(ctx context.Context, id raffletypes.RoundID) (*raffletypes.Round, error)
	ListEntries(ctx context.Context, id raffletypes.RoundID) ([]raffletypes.Entry, error)
}

// LedgerSource reads credited payouts.
type LedgerSource interface {
	Balance(ctx context.Context, account raffletypes.Participant) (*big.Int, error)
	Payouts(ctx context.Context, limit int) ([]raffletypes.PayoutRecord, error)
}

// UpkeepScheduler hands upkeep to the durable queue.
type UpkeepScheduler interface {
	EnqueueUpkeep(ctx context.Context, requestedBy string) error
	RecentJobs(ctx context.Context, limit int) ([]rafflequeue.JobInfo, error)
}

type settlementResponse struct {
	RoundID     raffletypes.RoundID     `json:"round_id"`
	RequestID   raffletypes.RequestID   `json:"request_id"`
	Winner      raffletypes.Participant `json:"winner"`
	Payout      string                  `json:"payout"`
	SettledAt   time.Time               `json:"settled_at"`
	NextRoundID raffletypes.RoundID     `json:"next_round_id"`
}

type entryResponse struct {
	Seq         int                     `json:"seq"`
	Participant raffletypes.Participant `json:"participant"`
	Amount      string                  `json:"amount"`
	CreatedAt   time.Time               `json:"created_at"`
}

type roundResponse struct {
	RoundID          raffletypes.RoundID     `json:"round_id"`
	State            raffletypes.RaffleState `json:"state"`
	Pool             string                  `json:"pool"`
	LatestTimestamp  time.Time               `json:"latest_timestamp"`
	PendingRequestID raffletypes.RequestID   `json:"pending_request_id,omitempty"`
	Entries          []entryResponse         `json:"entries"`
}

type payoutResponse struct {
	RequestID raffletypes.RequestID   `json:"request_id"`
	Recipient raffletypes.Participant `json:"recipient"`
	Amount    string                  `json:"amount"`
	CreatedAt time.Time               `json:"created_at"`
}

type balanceResponse struct {
	Account raffletypes.Participant `json:"account"`
	Balance string                  `json:"balance"`
}

type upkeepResponse struct {
	Queued    bool                  `json:"queued"`
	RequestID raffletypes.RequestID `json:"request_id,omitempty"`
}

// HandleListSettlements returns recent settlements, newest first.
func (h *Handlers) HandleListSettlements(w http.ResponseWriter, r *http.Request) {
	if h.sources.History == nil {
		writeError(w, http.StatusNotFound, "not_found", "history is not available")
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}

	settlements, err := h.sources.History.ListSettlements(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]settlementResponse, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, settlementResponse{
			RoundID:     s.RoundID,
			RequestID:   s.RequestID,
			Winner:      s.Winner,
			Payout:      s.Payout.String(),
			SettledAt:   s.SettledAt,
			NextRoundID: s.NextRound,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRound returns one stored round with its entries.
func (h *Handlers) HandleGetRound(w http.ResponseWriter, r *http.Request) {
	if h.sources.History == nil {
		writeError(w, http.StatusNotFound, "not_found", "history is not available")
		return
	}
	id, err := raffletypes.ParseRoundID(chi.URLParam(r, "roundID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "round id must be a UUID")
		return
	}

	round, err := h.sources.History.GetRound(r.Context(), id)
	if err != nil {
		if errors.Is(err, raffledb.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no such round")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	entries, err := h.sources.History.ListEntries(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := roundResponse{
		RoundID:          round.ID,
		State:            round.State,
		Pool:             round.Pool.String(),
		LatestTimestamp:  round.LastSettledAt,
		PendingRequestID: round.PendingRequestID,
		Entries:          make([]entryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryResponse{
			Seq:         e.Seq,
			Participant: e.Participant,
			Amount:      e.Amount.String(),
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListPayouts returns recent ledger credits, newest first.
func (h *Handlers) HandleListPayouts(w http.ResponseWriter, r *http.Request) {
	if h.sources.Ledger == nil {
		writeError(w, http.StatusNotFound, "not_found", "ledger is not available")
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}

	payouts, err := h.sources.Ledger.Payouts(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, payoutResponse{
			RequestID: p.RequestID,
			Recipient: p.Recipient,
			Amount:    p.Amount.String(),
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetBalance returns the credited total for one account.
func (h *Handlers) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	if h.sources.Ledger == nil {
		writeError(w, http.StatusNotFound, "not_found", "ledger is not available")
		return
	}
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, http.StatusBadRequest, "malformed_request", "address must be a hex address")
		return
	}
	account := common.HexToAddress(address)

	balance, err := h.sources.Ledger.Balance(r.Context(), account)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Balance: balance.String()})
}

// HandleRequestUpkeep asks for a draw. With a queue the attempt is scheduled
// and 202 is returned; otherwise upkeep runs inline.
func (h *Handlers) HandleRequestUpkeep(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "raffle.http.upkeep")
	defer span.End()

	if h.sources.Scheduler != nil {
		span.SetAttributes(attribute.Bool("queued", true))
		if err := h.sources.Scheduler.EnqueueUpkeep(ctx, "http"); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, upkeepResponse{Queued: true})
		return
	}

	requestID, err := h.service.PerformUpkeep(ctx)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.logger.InfoContext(ctx, "Upkeep performed over HTTP", slog.Uint64("request_id", uint64(requestID)))
	writeJSON(w, http.StatusOK, upkeepResponse{RequestID: requestID})
}

// HandleListUpkeepJobs returns the latest queued upkeep jobs.
func (h *Handlers) HandleListUpkeepJobs(w http.ResponseWriter, r *http.Request) {
	if h.sources.Scheduler == nil {
		writeError(w, http.StatusNotFound, "not_found", "upkeep queue is not enabled")
		return
	}
	limit, ok := listLimit(w, r)
	if !ok {
		return
	}

	jobs, err := h.sources.Scheduler.RecentJobs(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []rafflequeue.JobInfo{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// listLimit reads ?limit=, defaulting to 20 and capped at 100.
func listLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "malformed_request", "limit must be a positive integer")
		return 0, false
	}
	return min(limit, maxListLimit), true
}
