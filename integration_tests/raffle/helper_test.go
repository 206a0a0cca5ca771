package raffle_test

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	raffleservice "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/application"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	rafflepayout "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/payout"
	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	rafflemigrations "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/database"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/eventbus"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"github.com/Black-And-White-Club/raffle-bot/integration_tests/containers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	entranceFee = big.NewInt(100)
	keyHash     = common.HexToHash("0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c")
	consumer    = common.HexToAddress("0x000000000000000000000000000000000000a11e")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// startPostgres runs a migrated Postgres container for one test.
func startPostgres(t *testing.T) (*bun.DB, string) {
	t.Helper()
	requireDocker(t)
	ctx := context.Background()

	pg, dsn, err := containers.SetupPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	db, err := database.Open(ctx, database.Config{Driver: database.DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, discardLogger(), map[string]*migrate.Migrations{
		"raffle": rafflemigrations.Migrations,
	}))
	return db, dsn
}

// testClock is a settable clock shared by every engine in a test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineDeps struct {
	db          *bun.DB
	coordinator raffleservice.RandomnessCoordinator
	publisher   eventbus.EventBus
	clock       *testClock
	subID       uint64
}

// newEngine builds and restores an engine on deps.
func newEngine(t *testing.T, deps engineDeps) *raffleservice.RaffleService {
	t.Helper()
	obs := observability.NewTestObservability()
	logger := obs.Provider.Logger

	var publisher raffleservice.EventPublisher
	if deps.publisher != nil {
		publisher = deps.publisher
	}

	svc, err := raffleservice.NewRaffleService(
		raffleservice.Config{
			EntranceFee: entranceFee,
			Interval:    time.Minute,
			RandomnessParams: raffletypes.RandomnessParams{
				KeyHash:              keyHash,
				SubscriptionID:       deps.subID,
				RequestConfirmations: 3,
				CallbackGasLimit:     500_000,
				NumWords:             1,
			},
		},
		raffledb.NewRepository(deps.db),
		deps.coordinator,
		rafflepayout.NewLedger(deps.db, nil, logger),
		publisher,
		logger,
		obs.RaffleMetrics,
		obs.Provider.Tracer,
		raffleservice.WithClock(deps.clock.Now),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Restore(context.Background()))
	return svc
}
