package raffle_test

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	raffleevents "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/events"
	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	rafflehandlers "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/handlers"
	rafflekeeper "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/keeper"
	rafflepayout "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/payout"
	rafflequeue "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/queue"
	raffledb "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories"
	rafflemigrations "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/repositories/migrations"
	rafflerouter "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/router"
	rafflevrf "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/infrastructure/vrf"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/database"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/eventbus"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
	"github.com/Black-And-White-Club/raffle-bot/app/shared/observability"
	"github.com/Black-And-White-Club/raffle-bot/integration_tests/containers"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
)

func TestRaffle_SettlesAgainstPostgres(t *testing.T) {
	db, _ := startPostgres(t)
	ctx := context.Background()
	logger := discardLogger()

	coordinator, err := rafflevrf.NewCoordinator(rafflevrf.Config{
		FulfillmentDelay: -1,
		FulfillmentFee:   big.NewInt(10),
		Seed:             []byte("integration"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coordinator.Close() })

	subID := coordinator.CreateSubscription(consumer)
	require.NoError(t, coordinator.FundSubscription(subID, big.NewInt(1_000)))

	clock := newTestClock()
	deps := engineDeps{db: db, coordinator: coordinator.Requester(consumer), clock: clock, subID: subID}
	engine := newEngine(t, deps)
	require.NoError(t, coordinator.AddConsumer(subID, consumer, engine))

	players := []common.Address{
		common.HexToAddress("0x1000000000000000000000000000000000000001"),
		common.HexToAddress("0x2000000000000000000000000000000000000002"),
		common.HexToAddress("0x3000000000000000000000000000000000000003"),
	}
	for _, p := range players {
		_, err := engine.Enter(ctx, p, entranceFee)
		require.NoError(t, err)
	}

	// A second engine over the same store sees the open round with its entries.
	mid := newEngine(t, deps)
	assert.Equal(t, players, mid.Snapshot().Players)
	assert.Equal(t, "300", mid.Snapshot().Pool.String())

	clock.Advance(time.Minute)
	require.True(t, engine.CheckUpkeep(ctx).Ready)
	requestID, err := engine.PerformUpkeep(ctx)
	require.NoError(t, err)
	assert.Equal(t, raffletypes.RaffleStateCalculating, engine.State())

	words, err := coordinator.FulfillRandomWords(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, words, 1)

	winner := players[new(big.Int).Mod(words[0], big.NewInt(int64(len(players)))).Int64()]
	assert.Equal(t, winner, engine.RecentWinner())
	assert.Equal(t, raffletypes.RaffleStateOpen, engine.State())
	assert.Zero(t, engine.NumPlayers())

	ledger := rafflepayout.NewLedger(db, nil, logger)
	balance, err := ledger.Balance(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, "300", balance.String())

	settlements, err := raffledb.NewRepository(db).ListSettlements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, requestID, settlements[0].RequestID)
	assert.Equal(t, winner, settlements[0].Winner)

	proof, ok := coordinator.Proof(requestID)
	require.True(t, ok)
	require.NoError(t, coordinator.VerifyProof(proof))

	sub, err := coordinator.GetSubscription(subID)
	require.NoError(t, err)
	assert.Equal(t, "990", sub.Balance.String())

	restored := newEngine(t, deps)
	snap := restored.Snapshot()
	assert.Equal(t, engine.Snapshot().ID, snap.ID)
	assert.Equal(t, raffletypes.RaffleStateOpen, snap.State)
	assert.Equal(t, winner, snap.RecentWinner)
	assert.Empty(t, snap.Players)
}

type countingUpkeeper struct {
	calls atomic.Int32
	done  chan struct{}
}

func (u *countingUpkeeper) Upkeep(context.Context) (raffletypes.RequestID, error) {
	if u.calls.Add(1) == 1 {
		close(u.done)
	}
	return 0, nil
}

func TestRaffle_RiverSchedulesUpkeep(t *testing.T) {
	db, dsn := startPostgres(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upkeeper := &countingUpkeeper{done: make(chan struct{})}
	queue, err := rafflequeue.NewService(ctx, db, discardLogger(), dsn, time.Hour, observability.NoOpRaffleMetrics{}, upkeeper)
	require.NoError(t, err)
	require.NoError(t, queue.HealthCheck(ctx))

	require.NoError(t, queue.Start(ctx))
	t.Cleanup(func() { _ = queue.Stop(context.Background()) })

	select {
	case <-upkeeper.done:
	case <-time.After(30 * time.Second):
		t.Fatal("periodic upkeep job did not run on start")
	}

	require.NoError(t, queue.EnqueueUpkeep(ctx, "integration"))
	require.Eventually(t, func() bool { return upkeeper.calls.Load() >= 2 }, 30*time.Second, 100*time.Millisecond)

	jobs, err := queue.RecentJobs(ctx, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(jobs), 2)
	for _, job := range jobs {
		assert.Equal(t, "raffle_upkeep", job.Kind)
	}
}

func TestRaffle_KeeperDrivesEngine(t *testing.T) {
	db, _ := startPostgres(t)
	ctx := context.Background()
	logger := discardLogger()

	coordinator, err := rafflevrf.NewCoordinator(rafflevrf.Config{FulfillmentDelay: 0}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = coordinator.Close() })
	subID := coordinator.CreateSubscription(consumer)
	require.NoError(t, coordinator.FundSubscription(subID, big.NewInt(1)))

	clock := newTestClock()
	engine := newEngine(t, engineDeps{db: db, coordinator: coordinator.Requester(consumer), clock: clock, subID: subID})
	require.NoError(t, coordinator.AddConsumer(subID, consumer, engine))

	player := common.HexToAddress("0x4000000000000000000000000000000000000004")
	_, err = engine.Enter(ctx, player, entranceFee)
	require.NoError(t, err)

	keeper := rafflekeeper.NewKeeper(engine, time.Second, logger, nil)
	requestID, err := keeper.Upkeep(ctx)
	require.NoError(t, err)
	assert.True(t, requestID.IsZero(), "interval has not elapsed")

	clock.Advance(time.Minute)
	requestID, err = keeper.Upkeep(ctx)
	require.NoError(t, err)
	require.False(t, requestID.IsZero())

	require.Eventually(t, func() bool {
		return engine.RecentWinner() == player
	}, 10*time.Second, 20*time.Millisecond, "automatic fulfillment settles the round")
}

func TestRaffle_CommandsOverJetStream(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := discardLogger()

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = natsContainer.Terminate(context.Background()) })

	bus, err := eventbus.New(ctx, eventbus.Config{
		URL:           natsURL,
		StreamName:    "raffle",
		Subjects:      []string{"raffle.>"},
		DurablePrefix: "itest",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, DSN: "file:jetstream?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, logger, map[string]*migrate.Migrations{
		"raffle": rafflemigrations.Migrations,
	}))

	engine := newEngine(t, engineDeps{
		db:          db,
		coordinator: rafflevrf.NewExternalRequester(logger),
		publisher:   bus,
		clock:       newTestClock(),
	})

	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	require.NoError(t, err)
	raffleRouter := rafflerouter.NewRaffleRouter(logger, router, bus, bus, observability.NewTestObservability().Provider.Tracer, handlerwrapper.NoOpMetrics{}, nil)
	require.NoError(t, raffleRouter.Configure(ctx, rafflehandlers.NewRaffleHandlers(engine, logger, observability.NewTestObservability().Provider.Tracer)))

	accepted, err := bus.Subscribe(ctx, raffleevents.EntryAcceptedV1)
	require.NoError(t, err)
	recorded, err := bus.Subscribe(ctx, raffleevents.EntryRecordedV1)
	require.NoError(t, err)

	go func() { _ = router.Run(ctx) }()
	<-router.Running()
	t.Cleanup(func() { _ = raffleRouter.Close() })

	player := common.HexToAddress("0x5000000000000000000000000000000000000005")
	require.NoError(t, bus.PublishJSON(ctx, raffleevents.EntryRequestedV1, &raffleevents.EntryRequestedPayloadV1{
		Participant: player.Hex(),
		Amount:      "150",
	}))

	var reply raffleevents.EntryAcceptedPayloadV1
	receiveJSON(t, accepted, &reply)
	assert.Equal(t, player, reply.Participant)
	assert.Equal(t, 1, reply.PlayerCount)

	var notification raffleevents.EntryRecordedPayloadV1
	receiveJSON(t, recorded, &notification)
	assert.Equal(t, "150", notification.Amount)

	assert.Equal(t, "150", engine.Snapshot().Pool.String())
}

func receiveJSON(t *testing.T, ch <-chan *message.Message, out any) {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		require.NoError(t, json.Unmarshal(msg.Payload, out))
	case <-time.After(20 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
