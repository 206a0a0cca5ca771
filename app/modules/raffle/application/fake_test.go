package raffleservice

import (
	"context"
	"math/big"
	"sync"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
)

// ------------------------
// Fake Round Store
// ------------------------

// FakeRoundStore provides a programmable stub for the RoundStore interface.
type FakeRoundStore struct {
	mu    sync.Mutex
	trace []string

	LoadCurrentRoundFunc func(ctx context.Context) (*raffletypes.Round, error)
	SaveRoundFunc        func(ctx context.Context, round *raffletypes.Round) error
	RecordEntryFunc      func(ctx context.Context, round *raffletypes.Round, entry raffletypes.Entry) error
	RecordSettlementFunc func(ctx context.Context, settlement raffletypes.Settlement, next *raffletypes.Round) error
}

func NewFakeRoundStore() *FakeRoundStore {
	return &FakeRoundStore{trace: []string{}}
}

// Trace returns the sequence of method calls made to the fake.
func (f *FakeRoundStore) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeRoundStore) record(step string) {
	f.mu.Lock()
	f.trace = append(f.trace, step)
	f.mu.Unlock()
}

func (f *FakeRoundStore) LoadCurrentRound(ctx context.Context) (*raffletypes.Round, error) {
	f.record("LoadCurrentRound")
	if f.LoadCurrentRoundFunc != nil {
		return f.LoadCurrentRoundFunc(ctx)
	}
	return nil, nil
}

func (f *FakeRoundStore) SaveRound(ctx context.Context, round *raffletypes.Round) error {
	f.record("SaveRound")
	if f.SaveRoundFunc != nil {
		return f.SaveRoundFunc(ctx, round)
	}
	return nil
}

func (f *FakeRoundStore) RecordEntry(ctx context.Context, round *raffletypes.Round, entry raffletypes.Entry) error {
	f.record("RecordEntry")
	if f.RecordEntryFunc != nil {
		return f.RecordEntryFunc(ctx, round, entry)
	}
	return nil
}

func (f *FakeRoundStore) RecordSettlement(ctx context.Context, settlement raffletypes.Settlement, next *raffletypes.Round) error {
	f.record("RecordSettlement")
	if f.RecordSettlementFunc != nil {
		return f.RecordSettlementFunc(ctx, settlement, next)
	}
	return nil
}

// ------------------------
// Fake Coordinator
// ------------------------

// FakeCoordinator hands out sequential request ids starting at 1.
type FakeCoordinator struct {
	mu     sync.Mutex
	nextID raffletypes.RequestID
	Params []raffletypes.RandomnessParams

	RequestRandomnessFunc func(ctx context.Context, params raffletypes.RandomnessParams) (raffletypes.RequestID, error)
}

func (f *FakeCoordinator) RequestRandomness(ctx context.Context, params raffletypes.RandomnessParams) (raffletypes.RequestID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Params = append(f.Params, params)
	if f.RequestRandomnessFunc != nil {
		return f.RequestRandomnessFunc(ctx, params)
	}
	f.nextID++
	return f.nextID, nil
}

func (f *FakeCoordinator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Params)
}

// ------------------------
// Fake Payout
// ------------------------

type payoutCall struct {
	RequestID raffletypes.RequestID
	To        raffletypes.Participant
	Amount    *big.Int
}

// FakePayout records transfers and fails when PayoutFunc says so.
type FakePayout struct {
	mu    sync.Mutex
	Calls []payoutCall

	PayoutFunc func(ctx context.Context, requestID raffletypes.RequestID, to raffletypes.Participant, amount *big.Int) error
}

func (f *FakePayout) Payout(ctx context.Context, requestID raffletypes.RequestID, to raffletypes.Participant, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, payoutCall{RequestID: requestID, To: to, Amount: new(big.Int).Set(amount)})
	if f.PayoutFunc != nil {
		return f.PayoutFunc(ctx, requestID, to, amount)
	}
	return nil
}

// CallCount returns the number of transfers attempted.
func (f *FakePayout) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// ------------------------
// Fake Publisher
// ------------------------

type publishedEvent struct {
	Topic   string
	Payload any
}

// FakePublisher captures every notification.
type FakePublisher struct {
	mu     sync.Mutex
	Events []publishedEvent

	PublishJSONFunc func(ctx context.Context, topic string, payload any) error
}

func (f *FakePublisher) PublishJSON(ctx context.Context, topic string, payload any) error {
	f.mu.Lock()
	f.Events = append(f.Events, publishedEvent{Topic: topic, Payload: payload})
	f.mu.Unlock()
	if f.PublishJSONFunc != nil {
		return f.PublishJSONFunc(ctx, topic, payload)
	}
	return nil
}

// Topics returns the published topics in order.
func (f *FakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Events))
	for _, e := range f.Events {
		out = append(out, e.Topic)
	}
	return out
}

// ------------------------
// Fake Clock
// ------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
