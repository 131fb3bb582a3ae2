// Package session tracks idle time for the current session: debounced
// activity signals extend an idle timer, the timer's expiry force-ends
// the session, and a SyncTransport keeps sibling execution contexts in
// lockstep so one context's activity counts for all of them.
package session

import (
	"log/slog"
	"sync"
	"time"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/broadcast"
	"github.com/chimerakang/authsession-go/bus"
	"github.com/chimerakang/authsession-go/metrics"
)

// State is a snapshot of the tracked session.
type State struct {
	Active         bool
	CreatedAt      time.Time
	LastActivityAt time.Time
	Timeout        time.Duration
}

// Tracker implements authsession.SessionTracker. The session alternates
// between Active and Expired; Expired is terminal until an explicit
// Activate.
type Tracker struct {
	timeout       time.Duration
	debounceSpan  time.Duration
	maxCallbacks  int
	transport     authsession.SyncTransport
	events        *bus.Bus
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	idle     resettable
	debounce resettable

	mu             sync.Mutex
	active         bool
	createdAt      time.Time
	lastActivityAt time.Time
	debounceArmed  bool
	timeoutCbs     []*callbackRef
	activityCbs    []*callbackRef

	unsubscribe func()
}

type callbackRef struct {
	fn func()
}

var _ authsession.SessionTracker = (*Tracker)(nil)

// Option configures the Tracker.
type Option func(*Tracker)

// WithTransport sets the cross-context sync transport.
// Default: broadcast.Noop (single-instance operation).
func WithTransport(t authsession.SyncTransport) Option {
	return func(tr *Tracker) { tr.transport = t }
}

// WithBus sets the event bus for session events.
func WithBus(b *bus.Bus) Option {
	return func(tr *Tracker) { tr.events = b }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(tr *Tracker) { tr.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(tr *Tracker) { tr.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(tr *Tracker) { tr.now = now }
}

// New creates a Tracker from the configuration. The tracker starts
// inactive; call Activate once a credential is installed.
func New(cfg authsession.Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr := &Tracker{
		timeout:      cfg.IdleTimeout,
		debounceSpan: cfg.DebounceWindow,
		maxCallbacks: cfg.MaxActivityCallbacks,
		transport:    broadcast.Noop{},
		logger:       slog.Default(),
		metrics:      metrics.New(false),
		now:          time.Now,
	}
	for _, o := range opts {
		o(tr)
	}

	tr.unsubscribe = tr.transport.Subscribe(tr.handleSync)
	return tr, nil
}

// Activate starts (or restarts) the session, arms the idle timer and
// tells sibling contexts to do the same.
func (tr *Tracker) Activate() {
	tr.mu.Lock()
	now := tr.now()
	tr.active = true
	tr.createdAt = now
	tr.lastActivityAt = now
	tr.mu.Unlock()

	tr.idle.Arm(tr.timeout, tr.onIdle)
	tr.send(authsession.SyncLogin)
}

// RecordActivity extends the idle timer and notifies activity callbacks.
// Bursts inside the debounce window coalesce into one effective update;
// only the first signal of a burst does any work.
func (tr *Tracker) RecordActivity() {
	tr.mu.Lock()
	if !tr.active || tr.debounceArmed {
		tr.mu.Unlock()
		return
	}
	tr.debounceArmed = true
	tr.lastActivityAt = tr.now()
	cbs := snapshotCallbacks(tr.activityCbs)
	tr.mu.Unlock()

	tr.debounce.Arm(tr.debounceSpan, func() {
		tr.mu.Lock()
		tr.debounceArmed = false
		tr.mu.Unlock()
	})
	tr.idle.Arm(tr.timeout, tr.onIdle)

	tr.metrics.RecordSessionActivity()
	tr.send(authsession.SyncActivity)
	if tr.events != nil {
		tr.events.Publish(authsession.TopicSessionActivity, nil)
	}
	tr.invoke(cbs)
}

// Active reports whether the session is currently active.
func (tr *Tracker) Active() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.active
}

// State returns a snapshot of the session.
func (tr *Tracker) State() State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return State{
		Active:         tr.active,
		CreatedAt:      tr.createdAt,
		LastActivityAt: tr.lastActivityAt,
		Timeout:        tr.timeout,
	}
}

// Expire force-expires the session and broadcasts a logout message.
func (tr *Tracker) Expire() {
	tr.expire(true)
}

// Resume re-checks elapsed wall-clock time after the process was
// suspended. Timers do not tick while a laptop sleeps; if the idle
// timeout passed on the wall clock the session expires immediately.
func (tr *Tracker) Resume() {
	tr.mu.Lock()
	if !tr.active {
		tr.mu.Unlock()
		return
	}
	expiredWhileAway := tr.now().Sub(tr.lastActivityAt) >= tr.timeout
	tr.mu.Unlock()

	if expiredWhileAway {
		tr.expire(true)
	}
}

// OnTimeout registers fn to run when the session expires. Registrations
// beyond the configured cap are rejected with ErrSubscriberLimit and a
// no-op cancel function.
func (tr *Tracker) OnTimeout(fn func()) (func(), error) {
	return tr.register(&tr.timeoutCbs, fn)
}

// OnActivity registers fn to run on each effective activity update,
// subject to the same cap as OnTimeout.
func (tr *Tracker) OnActivity(fn func()) (func(), error) {
	return tr.register(&tr.activityCbs, fn)
}

// Close cancels both timers and detaches from the sync transport.
func (tr *Tracker) Close() error {
	tr.idle.Cancel()
	tr.debounce.Cancel()
	tr.mu.Lock()
	tr.debounceArmed = false
	tr.mu.Unlock()
	if tr.unsubscribe != nil {
		tr.unsubscribe()
	}
	return nil
}

func (tr *Tracker) register(list *[]*callbackRef, fn func()) (func(), error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.maxCallbacks > 0 && len(*list) >= tr.maxCallbacks {
		tr.logger.Warn("session callback cap reached, registration rejected", "cap", tr.maxCallbacks)
		return func() {}, authsession.ErrSubscriberLimit
	}

	ref := &callbackRef{fn: fn}
	*list = append(*list, ref)

	return func() {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for i, other := range *list {
			if other == ref {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}, nil
}

// onIdle fires when the idle timer elapses. Activity may have raced the
// timer; if the session is not actually idle long enough, re-arm for the
// remainder instead of expiring.
func (tr *Tracker) onIdle() {
	tr.mu.Lock()
	if !tr.active {
		tr.mu.Unlock()
		return
	}
	idleFor := tr.now().Sub(tr.lastActivityAt)
	if idleFor < tr.timeout {
		remaining := tr.timeout - idleFor
		tr.mu.Unlock()
		tr.idle.Arm(remaining, tr.onIdle)
		return
	}
	tr.mu.Unlock()

	tr.expire(true)
}

// expire transitions to Expired, runs timeout callbacks and optionally
// broadcasts a logout to sibling contexts. A second call is a no-op.
func (tr *Tracker) expire(broadcastOut bool) {
	tr.mu.Lock()
	if !tr.active {
		tr.mu.Unlock()
		return
	}
	tr.active = false
	tr.debounceArmed = false
	cbs := snapshotCallbacks(tr.timeoutCbs)
	tr.mu.Unlock()

	tr.idle.Cancel()
	tr.debounce.Cancel()

	tr.metrics.RecordSessionTimeout()
	tr.invoke(cbs)
	if tr.events != nil {
		tr.events.Publish(authsession.TopicSessionExpired, nil)
	}
	if broadcastOut {
		tr.send(authsession.SyncLogout)
	}
}

// handleSync applies a sibling context's message locally. Nothing here
// re-broadcasts, so messages cannot loop between contexts.
func (tr *Tracker) handleSync(msg authsession.SyncMessage) {
	switch msg.Kind {
	case authsession.SyncLogout:
		tr.expire(false)
	case authsession.SyncActivity, authsession.SyncRefresh:
		tr.extend()
	case authsession.SyncLogin:
		tr.mu.Lock()
		now := tr.now()
		tr.active = true
		tr.createdAt = now
		tr.lastActivityAt = now
		tr.mu.Unlock()
		tr.idle.Arm(tr.timeout, tr.onIdle)
	default:
		tr.logger.Debug("ignoring unknown sync message", "kind", msg.Kind)
	}
}

// extend pushes the idle deadline out without broadcasting.
func (tr *Tracker) extend() {
	tr.mu.Lock()
	if !tr.active {
		tr.mu.Unlock()
		return
	}
	tr.lastActivityAt = tr.now()
	tr.mu.Unlock()
	tr.idle.Arm(tr.timeout, tr.onIdle)
}

func (tr *Tracker) send(kind authsession.SyncKind) {
	msg := authsession.SyncMessage{
		Kind:      kind,
		Timestamp: tr.now().UnixMilli(),
	}
	if err := tr.transport.Publish(msg); err != nil {
		tr.logger.Warn("sync broadcast failed", "kind", kind, "error", err)
	}
}

func (tr *Tracker) invoke(cbs []func()) {
	for _, fn := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					tr.logger.Error("session callback panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}

func snapshotCallbacks(refs []*callbackRef) []func() {
	out := make([]func(), len(refs))
	for i, ref := range refs {
		out[i] = ref.fn
	}
	return out
}
