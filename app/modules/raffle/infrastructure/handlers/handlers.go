package rafflehandlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"
)

// Handlers is the set of raffle message handlers.
type Handlers interface {
	HandleEntryRequested(ctx context.Context, payload *raffleevents.EntryRequestedPayloadV1) ([]handlerwrapper.Result, error)
	HandleUpkeepRequested(ctx context.Context, payload *raffleevents.UpkeepRequestedPayloadV1) ([]handlerwrapper.Result, error)
	HandleRandomnessFulfilled(ctx context.Context, payload *raffleevents.RandomnessFulfilledPayloadV1) ([]handlerwrapper.Result, error)
}

// RaffleHandlers translates bus commands into engine calls. Business
// rejections become reply messages; infrastructure errors are returned so the
// message is redelivered.
type RaffleHandlers struct {
	service raffleservice.Service
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewRaffleHandlers creates a new RaffleHandlers.
func NewRaffleHandlers(service raffleservice.Service, logger *slog.Logger, tracer trace.Tracer) Handlers {
	return &RaffleHandlers{
		service: service,
		logger:  logger,
		tracer:  tracer,
	}
}

var errMalformed = errors.New("malformed request")

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not a base-10 integer", errMalformed, s)
	}
	return amount, nil
}

func parseParticipant(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: participant %q is not a hex address", errMalformed, s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: participant is the zero address", errMalformed)
	}
	return addr, nil
}

func single(topic string, payload any) []handlerwrapper.Result {
	return []handlerwrapper.Result{{Topic: topic, Payload: payload}}
}
