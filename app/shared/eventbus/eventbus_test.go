package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInMemory_PublishJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewInMemory(discardLogger())
	defer bus.Close()

	messages, err := bus.Subscribe(ctx, "raffle.test.v1")
	require.NoError(t, err)

	type payload struct {
		Amount string `json:"amount"`
	}
	require.NoError(t, bus.PublishJSON(ctx, "raffle.test.v1", payload{Amount: "100"}))

	select {
	case msg := <-messages:
		var got payload
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "100", got.Amount)
		assert.Equal(t, "raffle.test.v1", msg.Metadata.Get("topic"))
		assert.Equal(t, msg.UUID, middleware.MessageCorrelationID(msg))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemory_PublishJSON_InheritsCorrelationID(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus := NewInMemory(discardLogger())
	defer bus.Close()

	messages, err := bus.Subscribe(ctx, "raffle.reply.v1")
	require.NoError(t, err)

	incoming := message.NewMessage("incoming", nil)
	middleware.SetCorrelationID("corr-123", incoming)

	require.NoError(t, bus.PublishJSON(WithMessage(ctx, incoming), "raffle.reply.v1", map[string]string{"ok": "yes"}))

	select {
	case msg := <-messages:
		assert.Equal(t, "corr-123", middleware.MessageCorrelationID(msg))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemory_PublishJSON_MarshalError(t *testing.T) {
	bus := NewInMemory(discardLogger())
	defer bus.Close()

	err := bus.PublishJSON(context.Background(), "raffle.bad.v1", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal")
}

func TestNew_WithoutURLUsesInMemory(t *testing.T) {
	bus, err := New(context.Background(), Config{}, discardLogger())
	require.NoError(t, err)
	defer bus.Close()

	_, ok := bus.(*eventBus).publisher.(interface{ Close() error })
	assert.True(t, ok)
	assert.Nil(t, bus.(*eventBus).conn)
}

type closeCounter struct {
	closes int
	err    error
}

func (c *closeCounter) Publish(string, ...*message.Message) error { return nil }

func (c *closeCounter) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, nil
}

func (c *closeCounter) Close() error {
	c.closes++
	return c.err
}

func TestEventBus_Close(t *testing.T) {
	t.Run("in-memory bus closes its pub/sub once", func(t *testing.T) {
		bus := NewInMemory(discardLogger())
		require.NoError(t, bus.Close())

		err := bus.PublishJSON(context.Background(), "raffle.closed", map[string]string{"k": "v"})
		assert.Error(t, err, "publishing after close fails")
	})

	t.Run("separate publisher and subscriber both close", func(t *testing.T) {
		pub := &closeCounter{}
		sub := &closeCounter{}
		bus := &eventBus{publisher: pub, subscriber: sub, logger: discardLogger()}

		require.NoError(t, bus.Close())
		assert.Equal(t, 1, pub.closes)
		assert.Equal(t, 1, sub.closes)
	})

	t.Run("shared pub/sub closes once", func(t *testing.T) {
		ps := &closeCounter{}
		bus := &eventBus{publisher: ps, subscriber: ps, shared: true, logger: discardLogger()}

		require.NoError(t, bus.Close())
		assert.Equal(t, 1, ps.closes)
	})

	t.Run("errors from both sides are joined", func(t *testing.T) {
		pub := &closeCounter{err: errors.New("pub stuck")}
		sub := &closeCounter{err: errors.New("sub stuck")}
		bus := &eventBus{publisher: pub, subscriber: sub, logger: discardLogger()}

		err := bus.Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close publisher: pub stuck")
		assert.Contains(t, err.Error(), "close subscriber: sub stuck")
	})
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "raffle_raffle_entry_requested_v1", durableName("raffle", "raffle.entry.requested.v1"))
	assert.Equal(t, "", durableName("", "raffle.entry.requested.v1"))
}
