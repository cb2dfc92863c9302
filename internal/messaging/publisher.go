package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/bookstore-orders/internal/domain"
)

var publisherTracer = otel.Tracer("messaging/publisher")

var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrStartupFatal      = errors.New("broker connection attempts exhausted")
	ErrAlreadyConnecting = errors.New("publisher already connecting or connected")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MessageWriter is the publishing handle obtained once the broker connection
// is established. *kafka.Writer satisfies it and is safe for concurrent use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConnectFunc performs one connection attempt: reach the broker, declare the
// topic and return a writer for it. completion receives asynchronous
// delivery results.
type ConnectFunc func(ctx context.Context, topic string, completion func(messages []kafka.Message, err error)) (MessageWriter, error)

type PublisherConfig struct {
	Topic          string
	Attempts       uint
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

type Publisher struct {
	cfg     PublisherConfig
	connect ConnectFunc
	logger  *slog.Logger

	state  atomic.Int32
	mu     sync.RWMutex
	writer MessageWriter

	published metric.Int64Counter
	failed    metric.Int64Counter
}

func NewPublisher(cfg PublisherConfig, connect ConnectFunc, logger *slog.Logger) *Publisher {
	meter := otel.Meter("messaging/publisher")
	p := &Publisher{
		cfg:     cfg,
		connect: connect,
		logger:  logger,
	}
	p.published, _ = meter.Int64Counter("events.published", metric.WithDescription("Order events handed to the broker writer"))
	p.failed, _ = meter.Int64Counter("events.failed", metric.WithDescription("Order events that could not be published"))
	return p
}

func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Connect establishes the broker connection with a bounded number of
// attempts spaced by a constant delay. It may run only once per publisher;
// on exhaustion it returns ErrStartupFatal and the publisher stays
// disconnected.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnecting
	}

	var attempt uint
	writer, err := backoff.Retry(ctx, func() (MessageWriter, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()

		w, err := p.connect(attemptCtx, p.cfg.Topic, p.onDelivery)
		if err != nil {
			p.logger.Error("failed to connect to broker",
				"error", err, "attempt", attempt, "max_attempts", p.cfg.Attempts)
			return nil, err
		}
		return w, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.RetryDelay)),
		backoff.WithMaxTries(p.cfg.Attempts),
	)
	if err != nil {
		p.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w after %d attempts: %w", ErrStartupFatal, attempt, err)
	}

	p.mu.Lock()
	p.writer = writer
	p.mu.Unlock()
	p.state.Store(int32(StateConnected))

	p.logger.Info("connected to broker", "topic", p.cfg.Topic, "attempts", attempt)
	return nil
}

// PublishOrderCreated hands the event to the broker writer without waiting
// for delivery. Before the connection is up it returns ErrBrokerUnavailable
// immediately.
func (p *Publisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	if p.State() != StateConnected {
		p.failed.Add(ctx, 1)
		return ErrBrokerUnavailable
	}

	p.mu.RLock()
	writer := p.writer
	p.mu.RUnlock()
	if writer == nil {
		p.failed.Add(ctx, 1)
		return ErrBrokerUnavailable
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Event, err)
	}

	ctx, span := publisherTracer.Start(ctx, "send "+p.cfg.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.cfg.Topic),
		),
	)
	defer span.End()

	if err := writer.WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.failed.Add(ctx, 1)
		return fmt.Errorf("publish to %s: %w", p.cfg.Topic, err)
	}

	p.published.Add(ctx, 1)
	return nil
}

func (p *Publisher) onDelivery(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	p.failed.Add(context.Background(), int64(len(messages)))
	p.logger.Error("failed to deliver order events", "error", err, "topic", p.cfg.Topic, "count", len(messages))
}

// Close flushes pending messages. Later publishes report ErrBrokerUnavailable.
func (p *Publisher) Close() error {
	p.state.Store(int32(StateDisconnected))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
