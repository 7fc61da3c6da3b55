// Package messaging delivers domain events to in-process subscribers and, when
// Redis is configured, fans them out to the other instances over pub/sub.
// Delivery is best effort: publishing never fails the state change that
// produced the event.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when publishing to a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus dispatches events to handlers registered in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	wg          sync.WaitGroup
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns the production defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger.With(logger.Component("eventbus")),
		metrics:    NewEventBusMetrics(),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", logger.String("event_type", string(eventType)))
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged and counted, never returned.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.RecordPublish()
	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
			continue
		}
		b.execute(event, handler)
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		b.workerPool <- struct{}{}
		defer func() { <-b.workerPool }()
		b.execute(event, handler)
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := safeCall(handler, event)
	b.metrics.RecordHandler(err == nil)

	if err != nil {
		b.logger.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
}

func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits for queued handlers to finish.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Transport is the pub/sub surface the Redis bus needs.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// RedisEventBus delivers events locally and publishes them for other
// instances. Messages originating from this instance are skipped on receipt.
type RedisEventBus struct {
	transport  Transport
	localBus   *InMemoryEventBus
	channel    string
	instanceID string
	timeout    time.Duration
	logger     *logger.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func() error
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ shared.EventBus = (*RedisEventBus)(nil)

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Transport Transport

	// Channel defaults to "pubsub:learnhub:events".
	Channel string

	// InstanceID defaults to a random UUID.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger

	// PublishTimeout bounds a single publish round trip.
	PublishTimeout time.Duration
}

// NewRedisEventBus creates the bus and starts the subscription loop.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Transport == nil {
		return nil, errors.New("redis transport is required")
	}
	if config.Channel == "" {
		config.Channel = redis.PrefixPubSub + "learnhub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		transport:  config.Transport,
		localBus:   NewInMemoryEventBus(config.LocalBusConfig),
		channel:    config.Channel,
		instanceID: config.InstanceID,
		timeout:    config.PublishTimeout,
		logger:     config.Logger.With(logger.Component("redis-eventbus")),
		ctx:        ctx,
		cancel:     cancel,
	}

	messages, unsubscribe, err := bus.transport.Subscribe(ctx, bus.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}
	bus.unsubscribe = unsubscribe

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis and to local handlers. A Redis failure
// is logged and local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(newEnvelope(b.instanceID, event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if err := b.transport.Publish(ctx, b.channel, data); err != nil {
		b.logger.Warn("failed to publish to redis",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan []byte) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handleMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleMessage(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		b.logger.Warn("failed to unmarshal event", logger.Err(err))
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}
	if err := b.localBus.Publish(env.event()); err != nil {
		b.logger.Warn("failed to process remote event", logger.Err(err))
	}
}

// Close stops the subscription and drains the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	if b.unsubscribe != nil {
		if err := b.unsubscribe(); err != nil {
			b.logger.Warn("failed to close subscription", logger.Err(err))
		}
	}
	b.wg.Wait()
	return b.localBus.Close()
}

// Metrics returns the counters of the local bus.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ─────────────────────────────────────────────────────────────────────────────
// go-redis transport
// ─────────────────────────────────────────────────────────────────────────────

// RedisTransport implements Transport on a go-redis client. Publishes go
// through the client's circuit breaker; the subscription does not.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport creates a new RedisTransport.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

// Publish implements Transport.
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Do(ctx, func(ctx context.Context, rdb *goredis.Client) error {
		return rdb.Publish(ctx, channel, payload).Err()
	})
}

// Subscribe implements Transport.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	sub := t.client.Raw().Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	InstanceID  string           `json:"instance_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

func newEnvelope(instanceID string, event shared.Event) envelope {
	return envelope{
		InstanceID:  instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}

func (e envelope) event() shared.Event {
	return &remoteEvent{env: e}
}

// remoteEvent is an event received from another instance.
type remoteEvent struct{ env envelope }

func (e *remoteEvent) EventType() shared.EventType { return e.env.EventType }
func (e *remoteEvent) AggregateID() string         { return e.env.AggregateID }
func (e *remoteEvent) OccurredAt() time.Time       { return e.env.OccurredAt }
func (e *remoteEvent) Payload() map[string]any     { return e.env.Payload }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler outcomes.
type EventBusMetrics struct {
	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	Published       int64 `json:"published"`
	HandlerSuccess  int64 `json:"handler_success"`
	HandlerFailures int64 `json:"handler_failures"`
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{}
}

// RecordPublish counts a published event.
func (m *EventBusMetrics) RecordPublish() { m.published.Add(1) }

// RecordHandler counts a handler execution.
func (m *EventBusMetrics) RecordHandler(success bool) {
	if success {
		m.succeeded.Add(1)
		return
	}
	m.failed.Add(1)
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	return EventBusMetricsSnapshot{
		Published:       m.published.Load(),
		HandlerSuccess:  m.succeeded.Load(),
		HandlerFailures: m.failed.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

// AuditHandler logs every event it receives at info level.
func AuditHandler(log *logger.Logger) shared.EventHandler {
	log = log.With(logger.Component("event-audit"))
	return func(event shared.Event) error {
		log.Info("domain event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Time("occurred_at", event.OccurredAt()),
		)
		return nil
	}
}
