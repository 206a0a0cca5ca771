package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventBus is a watermill publisher and subscriber plus a JSON helper used by
// the raffle engine for notifications.
type EventBus interface {
	message.Publisher
	message.Subscriber
	PublishJSON(ctx context.Context, topic string, payload any) error
}

// Config selects the transport.
type Config struct {
	// URL of the NATS server. Empty selects the in-process gochannel bus.
	URL string
	// StreamName is the JetStream stream that captures every raffle subject.
	StreamName string
	// Subjects bound to StreamName, e.g. "raffle.>".
	Subjects []string
	// DurablePrefix names the durable consumers of this process.
	DurablePrefix string
}

type eventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	// shared is set when publisher and subscriber are one pub/sub.
	shared bool
	conn   *nc.Conn
	logger *slog.Logger
}

// New builds a NATS JetStream bus when cfg.URL is set and an in-memory bus otherwise.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (EventBus, error) {
	if cfg.URL == "" {
		logger.InfoContext(ctx, "No NATS URL configured; using in-memory event bus")
		return NewInMemory(logger), nil
	}
	return NewNATS(ctx, cfg, logger)
}

// NewInMemory returns a gochannel-backed bus for tests and single-process runs.
func NewInMemory(logger *slog.Logger) EventBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewSlogLogger(logger))

	return &eventBus{
		publisher:  pubSub,
		subscriber: pubSub,
		shared:     true,
		logger:     logger,
	}
}

// NewNATS connects to NATS, provisions the raffle stream, and returns a
// JetStream-backed bus.
func NewNATS(ctx context.Context, cfg Config, logger *slog.Logger) (EventBus, error) {
	natsOptions := []nc.Option{
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(2 * time.Second),
	}

	conn, err := nc.Connect(cfg.URL, natsOptions...)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to connect to NATS", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if cfg.StreamName != "" {
		if err := ensureStream(ctx, conn, cfg.StreamName, cfg.Subjects, logger); err != nil {
			conn.Close()
			return nil, err
		}
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := &nats.NATSMarshaler{}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:         cfg.URL,
			Marshaler:   marshaler,
			NatsOptions: natsOptions,
			JetStream: nats.JetStreamConfig{
				Disabled:      false,
				AutoProvision: false,
			},
		},
		wmLogger,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:              cfg.URL,
			Unmarshaler:      marshaler,
			NatsOptions:      natsOptions,
			SubscribersCount: 1,
			JetStream: nats.JetStreamConfig{
				Disabled:          false,
				AutoProvision:     false,
				DurablePrefix:     cfg.DurablePrefix,
				DurableCalculator: durableName,
				SubscribeOptions: []nc.SubOpt{
					nc.DeliverAll(),
					nc.AckExplicit(),
				},
			},
		},
		wmLogger,
	)
	if err != nil {
		publisher.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}

	logger.InfoContext(ctx, "Connected to NATS",
		slog.String("url", cfg.URL),
		slog.String("stream", cfg.StreamName),
	)

	return &eventBus{
		publisher:  publisher,
		subscriber: subscriber,
		conn:       conn,
		logger:     logger,
	}, nil
}

// durableName gives each topic its own consumer. Durable names may not contain dots.
func durableName(prefix, topic string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "_" + strings.NewReplacer(".", "_", "*", "any", ">", "all").Replace(topic)
}

func ensureStream(ctx context.Context, conn *nc.Conn, name string, subjects []string, logger *slog.Logger) error {
	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("failed to provision stream %s: %w", name, err)
	}
	logger.InfoContext(ctx, "JetStream stream ready",
		slog.String("stream", name),
		slog.Any("subjects", subjects),
	)
	return nil
}

// Publish sends msgs to topic. With an empty topic each message goes to the
// topic in its metadata, which is how router handlers without a fixed publish
// topic route their output.
func (eb *eventBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.UUID == "" {
			msg.UUID = watermill.NewUUID()
		}
		target := topic
		if target == "" {
			target = msg.Metadata.Get("topic")
		}
		if target == "" {
			return fmt.Errorf("message %s has no topic", msg.UUID)
		}
		msg.Metadata.Set("topic", target)
		if err := eb.publisher.Publish(target, msg); err != nil {
			return err
		}
	}
	return nil
}

func (eb *eventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return eb.subscriber.Subscribe(ctx, topic)
}

// PublishJSON encodes payload and publishes it on topic. The correlation id of
// the message in ctx, if any, is carried over.
func (eb *eventBus) PublishJSON(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if correlationID := middleware.MessageCorrelationID(messageFromContext(ctx)); correlationID != "" {
		middleware.SetCorrelationID(correlationID, msg)
	} else {
		middleware.SetCorrelationID(msg.UUID, msg)
	}

	if err := eb.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}

	eb.logger.DebugContext(ctx, "Published message",
		slog.String("topic", topic),
		slog.String("message_id", msg.UUID),
	)
	return nil
}

func (eb *eventBus) Close() error {
	var errs []error
	if err := eb.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if !eb.shared {
		if err := eb.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if eb.conn != nil {
		eb.conn.Close()
	}
	return errors.Join(errs...)
}

type messageKey struct{}

// WithMessage stores the message being handled so replies can inherit its
// correlation id.
func WithMessage(ctx context.Context, msg *message.Message) context.Context {
	return context.WithValue(ctx, messageKey{}, msg)
}

func messageFromContext(ctx context.Context) *message.Message {
	msg, _ := ctx.Value(messageKey{}).(*message.Message)
	if msg == nil {
		return message.NewMessage("", nil)
	}
	return msg
}
