package raffleapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	rafflevrf "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/vrf"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxBodyBytes bounds entry request bodies.
const maxBodyBytes = 4 << 10

// ProofSource looks up randomness proofs. Nil when randomness comes from an
// external oracle.
type ProofSource interface {
	Proof(requestID raffletypes.RequestID) (rafflevrf.Proof, bool)
}

// Sources are the optional read models behind the proof, history, ledger and
// upkeep routes. A nil source answers 404.
type Sources struct {
	Proofs    ProofSource
	History   HistorySource
	Ledger    LedgerSource
	Scheduler UpkeepScheduler
}

// Handlers serves the raffle over HTTP.
type Handlers struct {
	service raffleservice.Service
	sources Sources
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(service raffleservice.Service, sources Sources, logger *slog.Logger, tracer trace.Tracer) *Handlers {
	return &Handlers{service: service, sources: sources, logger: logger, tracer: tracer}
}

type enterRequest struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

type enterResponse struct {
	Participant raffletypes.Participant `json:"participant"`
	Amount      string                  `json:"amount"`
	PlayerCount int                     `json:"player_count"`
}

type raffleResponse struct {
	RoundID          raffletypes.RoundID     `json:"round_id"`
	State            raffletypes.RaffleState `json:"state"`
	EntranceFee      string                  `json:"entrance_fee"`
	IntervalSeconds  int64                   `json:"interval_seconds"`
	Pool             string                  `json:"pool"`
	NumPlayers       int                     `json:"num_players"`
	LatestTimestamp  time.Time               `json:"latest_timestamp"`
	RecentWinner     *common.Address         `json:"recent_winner,omitempty"`
	PendingRequestID raffletypes.RequestID   `json:"pending_request_id,omitempty"`
}

type playerResponse struct {
	Index       int                     `json:"index"`
	Participant raffletypes.Participant `json:"participant"`
}

type proofResponse struct {
	RequestID raffletypes.RequestID `json:"request_id"`
	PreSeed   string                `json:"pre_seed"`
	Signature string                `json:"signature"`
	Words     []string              `json:"random_words"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleEnter records an entry.
func (h *Handlers) HandleEnter(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "raffle.http.enter")
	defer span.End()

	var req enterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "body must be a JSON object with participant and amount")
		return
	}
	if !common.IsHexAddress(req.Participant) {
		writeError(w, http.StatusBadRequest, "malformed_request", "participant must be a hex address")
		return
	}
	participant := common.HexToAddress(req.Participant)
	if participant == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "malformed_request", "participant must not be the zero address")
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed_request", "amount must be a base-10 integer")
		return
	}
	span.SetAttributes(attribute.String("participant", participant.Hex()))

	count, err := h.service.Enter(ctx, participant, amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enterResponse{
		Participant: participant,
		Amount:      amount.String(),
		PlayerCount: count,
	})
}

// HandleGetRaffle returns a snapshot of the live round.
func (h *Handlers) HandleGetRaffle(w http.ResponseWriter, r *http.Request) {
	round := h.service.Snapshot()
	resp := raffleResponse{
		RoundID:          round.ID,
		State:            round.State,
		EntranceFee:      h.service.EntranceFee().String(),
		IntervalSeconds:  int64(h.service.Interval() / time.Second),
		Pool:             round.Pool.String(),
		NumPlayers:       len(round.Players),
		LatestTimestamp:  round.LastSettledAt,
		PendingRequestID: round.PendingRequestID,
	}
	if round.RecentWinner != (common.Address{}) {
		winner := round.RecentWinner
		resp.RecentWinner = &winner
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetPlayer returns the participant of one entry.
func (h *Handlers) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "index must be an integer")
		return
	}
	p, err := h.service.Player(index)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playerResponse{Index: index, Participant: p})
}

// HandleCheckUpkeep reports whether upkeep is due.
func (h *Handlers) HandleCheckUpkeep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CheckUpkeep(r.Context()))
}

// HandleGetProof returns the randomness proof behind a settled request.
func (h *Handlers) HandleGetProof(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", "request id must be an unsigned integer")
		return
	}
	if h.sources.Proofs == nil {
		writeError(w, http.StatusNotFound, "not_found", "proofs are not available")
		return
	}
	proof, ok := h.sources.Proofs.Proof(raffletypes.RequestID(id))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no proof for request")
		return
	}

	words := make([]string, len(proof.Words))
	for i, word := range proof.Words {
		words[i] = word.String()
	}
	writeJSON(w, http.StatusOK, proofResponse{
		RequestID: proof.RequestID,
		PreSeed:   common.Bytes2Hex(proof.PreSeed),
		Signature: common.Bytes2Hex(proof.Signature),
		Words:     words,
	})
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, raffleservice.ErrNotOpen):
		writeError(w, http.StatusConflict, "not_open", err.Error())
	case errors.Is(err, raffleservice.ErrInsufficientFee):
		writeError(w, http.StatusPaymentRequired, "insufficient_fee", err.Error())
	case errors.Is(err, raffleservice.ErrPlayerIndexOutOfRange):
		writeError(w, http.StatusNotFound, "index_out_of_range", err.Error())
	case errors.Is(err, raffleservice.ErrUpkeepNotReady):
		writeError(w, http.StatusConflict, "upkeep_not_ready", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "Raffle request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal", http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
