// Package bus provides the bounded-fanout publish/subscribe bus that
// decouples renewal, expiry and session-timeout signals from their
// consumers.
//
// Fanout is capped per topic and globally: a subscription beyond either
// cap is rejected with a warning and a no-op cancel function rather than
// letting the subscriber set grow unbounded. Handler errors and panics
// are caught and logged, never propagated to the publisher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/metrics"
)

// Handler processes a published payload. Errors are logged on Publish
// and aggregated on PublishAndWait.
type Handler func(payload any) error

type subscription struct {
	topic   string
	handler Handler
}

// Bus implements authsession.EventBus.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string][]*subscription
	total int

	maxPerTopic int
	maxGlobal   int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

var _ authsession.EventBus = (*eventBusAdapter)(nil)

// Option configures the Bus.
type Option func(*Bus)

// WithLogger sets a structured logger for handler diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New creates a bus capped at maxPerTopic subscribers per topic and
// maxGlobal across all topics. A cap of zero means unlimited.
func New(maxPerTopic, maxGlobal int, opts ...Option) *Bus {
	b := &Bus{
		subs:        make(map[string][]*subscription),
		maxPerTopic: maxPerTopic,
		maxGlobal:   maxGlobal,
		logger:      slog.Default(),
		metrics:     metrics.New(false),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers handler for topic and returns a cancel function.
// When a cap is reached the registration is rejected: the error is
// ErrSubscriberLimit and the returned cancel function is a no-op.
func (b *Bus) Subscribe(topic string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxPerTopic > 0 && len(b.subs[topic]) >= b.maxPerTopic {
		b.logger.Warn("subscriber cap reached for topic", "topic", topic, "cap", b.maxPerTopic)
		b.metrics.RecordBusRejection(topic)
		return func() {}, fmt.Errorf("topic %q: %w", topic, authsession.ErrSubscriberLimit)
	}
	if b.maxGlobal > 0 && b.total >= b.maxGlobal {
		b.logger.Warn("global subscriber cap reached", "topic", topic, "cap", b.maxGlobal)
		b.metrics.RecordBusRejection(topic)
		return func() {}, fmt.Errorf("topic %q: %w", topic, authsession.ErrSubscriberLimit)
	}

	sub := &subscription{topic: topic, handler: handler}
	b.subs[topic] = append(b.subs[topic], sub)
	b.total++

	return func() { b.unsubscribe(sub) }, nil
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			b.total--
			return
		}
	}
}

// Publish delivers payload to every subscriber of topic, fire-and-forget.
// Handler errors and panics are logged and never reach the publisher.
func (b *Bus) Publish(topic string, payload any) {
	for _, sub := range b.snapshot(topic) {
		if err := b.invoke(sub, payload); err != nil {
			b.logger.Error("event handler failed", "topic", topic, "error", err)
		}
	}
}

// PublishAndWait delivers payload to every subscriber of topic and
// returns the handlers' failures joined together. A failing handler does
// not stop the remaining ones; ctx cancellation does.
func (b *Bus) PublishAndWait(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, sub := range b.snapshot(topic) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := b.invoke(sub, payload); err != nil {
			errs = append(errs, fmt.Errorf("topic %q: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// SubscriberCount returns the number of subscribers for topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// snapshot copies the subscriber list so handlers run without the lock
// held; a handler may itself subscribe or unsubscribe.
func (b *Bus) snapshot(topic string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.subs[topic]
	out := make([]*subscription, len(list))
	copy(out, list)
	return out
}

func (b *Bus) invoke(sub *subscription, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return sub.handler(payload)
}

// eventBusAdapter exposes Bus through the root interface, which uses a
// raw func type rather than bus.Handler.
type eventBusAdapter struct {
	bus *Bus
}

// Adapter wraps b as an authsession.EventBus.
func Adapter(b *Bus) authsession.EventBus {
	return &eventBusAdapter{bus: b}
}

func (a *eventBusAdapter) Subscribe(topic string, handler func(payload any) error) (func(), error) {
	return a.bus.Subscribe(topic, Handler(handler))
}

func (a *eventBusAdapter) Publish(topic string, payload any) {
	a.bus.Publish(topic, payload)
}

func (a *eventBusAdapter) PublishAndWait(ctx context.Context, topic string, payload any) error {
	return a.bus.PublishAndWait(ctx, topic, payload)
}
