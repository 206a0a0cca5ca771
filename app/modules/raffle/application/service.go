package raffleservice

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "RaffleService"

// Config is fixed for the life of the engine.
type Config struct {
	EntranceFee      *big.Int
	Interval         time.Duration
	RandomnessParams raffletypes.RandomnessParams
}

// Validate checks the settings the engine cannot run without.
func (c Config) Validate() error {
	if c.EntranceFee == nil || c.EntranceFee.Sign() < 0 {
		return fmt.Errorf("%w: entrance fee must be zero or positive", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// RaffleService is the raffle engine. It owns the live round and serialises
// every mutation behind mu.
type RaffleService struct {
	mu    sync.RWMutex
	round *raffletypes.Round

	entranceFee *big.Int
	interval    time.Duration
	params      raffletypes.RandomnessParams

	store       RoundStore
	coordinator RandomnessCoordinator
	payout      PayoutService
	publisher   EventPublisher

	logger  *slog.Logger
	metrics observability.RaffleMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises a RaffleService.
type Option func(*RaffleService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RaffleService) {
		s.now = now
	}
}

// NewRaffleService creates the engine with an OPEN, empty round starting now.
func NewRaffleService(
	cfg Config,
	store RoundStore,
	coordinator RandomnessCoordinator,
	payout PayoutService,
	publisher EventPublisher,
	logger *slog.Logger,
	metrics observability.RaffleMetrics,
	tracer trace.Tracer,
	opts ...Option,
) (*RaffleService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &RaffleService{
		entranceFee: new(big.Int).Set(cfg.EntranceFee),
		interval:    cfg.Interval,
		params:      cfg.RandomnessParams,
		store:       store,
		coordinator: coordinator,
		payout:      payout,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.round = raffletypes.NewRound(s.now())
	return s, nil
}

// Restore loads the persisted live round. With nothing persisted the initial
// round is written so later writes have a row to update.
func (s *RaffleService) Restore(ctx context.Context) error {
	return s.withTelemetry(ctx, "Restore", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		round, err := s.store.LoadCurrentRound(ctx)
		if err != nil {
			return fmt.Errorf("failed to load current round: %w", err)
		}
		if round == nil {
			if err := s.store.SaveRound(ctx, s.round); err != nil {
				return fmt.Errorf("failed to save initial round: %w", err)
			}
			s.logger.InfoContext(ctx, "Initialized new raffle round",
				slog.String("round_id", s.round.ID.String()),
			)
			s.recordState(ctx)
			return nil
		}

		if round.Pool == nil {
			round.Pool = new(big.Int)
		}
		if round.Players == nil {
			round.Players = []raffletypes.Participant{}
		}
		s.round = round
		s.logger.InfoContext(ctx, "Restored raffle round",
			slog.String("round_id", round.ID.String()),
			slog.String("state", string(round.State)),
			slog.Int("players", len(round.Players)),
			slog.String("pool", round.Pool.String()),
			slog.Uint64("pending_request_id", uint64(round.PendingRequestID)),
		)
		if round.IsCalculating() {
			s.logger.WarnContext(ctx, "Restored round is waiting for randomness; it stays locked until the request is fulfilled",
				slog.Uint64("pending_request_id", uint64(round.PendingRequestID)),
			)
		}
		s.recordState(ctx)
		return nil
	})
}

// withTelemetry wraps an engine operation with tracing, metrics, and panic recovery.
func (s *RaffleService) withTelemetry(
	ctx context.Context,
	operationName string,
	op func(ctx context.Context) error,
) (err error) {
	ctx, span := s.tracer.Start(ctx, operationName, trace.WithAttributes(
		attribute.String("operation", operationName),
		attribute.String("service", serviceName),
	))
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)

	startTime := s.now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				slog.String("operation", operationName),
				slog.Any("error", err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	err = op(ctx)
	if err != nil {
		if IsDomainError(err) {
			reason := rejectionReason(err)
			s.logger.WarnContext(ctx, "Operation rejected",
				slog.String("operation", operationName),
				slog.String("reason", reason),
				slog.Any("error", err),
			)
			s.metrics.RecordOperationRejected(ctx, operationName, serviceName, reason)
			span.SetAttributes(attribute.String("rejection_reason", reason))
			return err
		}

		s.logger.ErrorContext(ctx, "Operation failed with error",
			slog.String("operation", operationName),
			slog.Any("error", err),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	return nil
}

// notify publishes a notification without failing the caller.
func (s *RaffleService) notify(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, topic, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish notification",
			slog.String("topic", topic),
			slog.Any("error", err),
		)
		s.metrics.RecordNotificationFailure(ctx, topic)
	}
}

// recordState exports the gauges. Callers hold mu.
func (s *RaffleService) recordState(ctx context.Context) {
	s.metrics.RecordRoundState(ctx, string(s.round.State), len(s.round.Players), s.round.Pool)
}
