// Package token owns the current credential pair: persistence through a
// Storage implementation, validation against the revocation cache,
// single-flight renewal with exponential backoff, and pre-emptive renewal
// scheduling ahead of expiry.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/bus"
	"github.com/chimerakang/authsession-go/codec"
	"github.com/chimerakang/authsession-go/metrics"
	"github.com/chimerakang/authsession-go/revocation"
	"github.com/chimerakang/authsession-go/storage/memory"
)

// revocationFallbackHorizon bounds a revocation entry when the access
// value carries no usable expiry claim.
const revocationFallbackHorizon = 24 * time.Hour

// Manager is the token lifecycle state machine: Empty → Active →
// Renewing → Active, or back to Empty on renewal exhaustion or logout.
// It is safe for concurrent use.
type Manager struct {
	cfg     authsession.Config
	storage authsession.Storage
	backend authsession.RenewalBackend
	decoder *codec.Decoder
	revoked *revocation.Cache
	events  *bus.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	sf singleflight.Group

	ownsRevoked bool

	mu         sync.Mutex
	current    *authsession.Credential
	storedAt   time.Time
	renewTimer *time.Timer
	generation uint64
}

var _ authsession.TokenManager = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithDecoder sets the credential decoder. Default: a decoder with the
// configured cache size.
func WithDecoder(d *codec.Decoder) Option {
	return func(m *Manager) { m.decoder = d }
}

// WithRevocationCache sets a shared revocation cache. Default: a private
// cache sized from the configuration.
func WithRevocationCache(c *revocation.Cache) Option {
	return func(m *Manager) { m.revoked = c }
}

// WithBus sets the event bus for lifecycle events.
func WithBus(b *bus.Bus) Option {
	return func(m *Manager) { m.events = b }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// New creates a Manager. When store is nil or reports unavailable, the
// manager degrades to a volatile in-memory store with a warning instead
// of failing: a session without persistence beats no session.
func New(cfg authsession.Config, store authsession.Storage, backend authsession.RenewalBackend, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		storage: store,
		backend: backend,
		logger:  slog.Default(),
		metrics: metrics.New(false),
		now:     time.Now,
		sleep:   ctxSleep,
	}
	for _, o := range opts {
		o(m)
	}

	if m.storage == nil || !m.storage.Available() {
		m.logger.Warn("storage unavailable, degrading to volatile in-memory store",
			"error", authsession.ErrStorageUnavailable)
		m.storage = memory.New()
	}
	if m.decoder == nil {
		m.decoder = codec.New(codec.WithCacheSize(cfg.DecodeCacheSize), codec.WithClock(m.now))
	}
	if m.revoked == nil {
		m.ownsRevoked = true
		m.revoked = revocation.New(cfg.RevocationCacheMaxEntries,
			revocation.WithSweepInterval(cfg.RevocationSweepInterval),
			revocation.WithLogger(m.logger),
			revocation.WithMetrics(m.metrics),
			revocation.WithClock(m.now),
		)
	}
	return m, nil
}

// Revocations returns the revocation cache in use, so an orchestrator can
// share it across managers.
func (m *Manager) Revocations() *revocation.Cache { return m.revoked }

// storedCredential is the persisted form: the credential pair plus its
// install time, so an opaque access value keeps decaying across reads
// instead of restarting its lifetime on every Load.
type storedCredential struct {
	Credential *authsession.Credential `json:"credential"`
	StoredAt   time.Time               `json:"stored_at"`
}

func (m *Manager) persist(cred *authsession.Credential) error {
	data, err := json.Marshal(storedCredential{Credential: cred, StoredAt: m.now()})
	if err != nil {
		return fmt.Errorf("authsession/token: encode credential: %w", err)
	}
	if err := m.storage.Save(m.cfg.TokenKey(), string(data)); err != nil {
		return fmt.Errorf("authsession/token: persist credential: %w", err)
	}
	return nil
}

// Store persists the credential, makes it current and (re)schedules
// pre-emptive renewal when the credential carries a lifetime.
func (m *Manager) Store(cred *authsession.Credential) error {
	if cred == nil || cred.AccessValue == "" {
		return authsession.ErrNoCredential
	}
	if err := m.persist(cred); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = cred.Clone()
	m.storedAt = m.now()
	m.scheduleRenewalLocked(cred)
	m.mu.Unlock()

	return nil
}

// Load returns the current credential. The in-memory copy wins while it
// is present and unexpired; otherwise the credential is read back from
// storage. ExpiresIn is recomputed so it reflects the remaining lifetime
// at the time of the call.
func (m *Manager) Load() (*authsession.Credential, error) {
	m.mu.Lock()
	cached := m.current.Clone()
	storedAt := m.storedAt
	m.mu.Unlock()

	if cached != nil {
		remaining, expired := m.remaining(cached, storedAt)
		if !expired {
			cached.ExpiresIn = remaining
			return cached, nil
		}
		// The cached copy expired; storage may hold a newer pair
		// written by a sibling context.
	}

	raw, found, err := m.storage.Load(m.cfg.TokenKey())
	if err != nil {
		return nil, fmt.Errorf("authsession/token: read credential: %w", err)
	}
	if !found {
		return nil, authsession.ErrNoCredential
	}

	var env storedCredential
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("authsession/token: decode stored credential: %w", err)
	}
	if env.Credential == nil {
		return nil, authsession.ErrNoCredential
	}
	cred := env.Credential

	// Reconstruct the remaining lifetime: the claims' expiry wins when
	// the access value decodes, otherwise the persisted lifetime decays
	// from the recorded install time.
	storedAt = env.StoredAt
	if storedAt.IsZero() {
		storedAt = m.now()
	}
	cred.ExpiresIn, _ = m.remaining(cred, storedAt)

	m.mu.Lock()
	m.current = cred.Clone()
	m.storedAt = m.now()
	m.mu.Unlock()

	return cred, nil
}

// Validate reports whether cred can be presented: the access value must
// be present, absent from the revocation cache, and pass structural and
// time-claim validation.
func (m *Manager) Validate(cred *authsession.Credential) bool {
	if cred == nil || cred.AccessValue == "" {
		return false
	}
	if m.revoked.Has(cred.AccessValue) {
		return false
	}
	claims, err := m.decoder.Decode(cred.AccessValue)
	if err != nil {
		return false
	}
	if err := m.decoder.Validate(claims, codec.ValidateOptions{ClockTolerance: m.cfg.ClockTolerance}); err != nil {
		m.logger.Debug("credential failed validation", "error", err)
		return false
	}
	return true
}

// Refresh exchanges the renewal value for a fresh credential pair. At
// most one renewal flight is outstanding per manager: concurrent callers
// join the in-flight attempt and observe its result. Transient backend
// failures are retried with exponential backoff and jitter up to the
// configured budget; a non-transient rejection fails immediately.
//
// A flight whose session was cleared mid-air is discarded: the result is
// returned to callers but neither stored nor announced.
func (m *Manager) Refresh(ctx context.Context, renewalValue ...string) (*authsession.Credential, error) {
	override := ""
	if len(renewalValue) > 0 {
		override = renewalValue[0]
	}

	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx, override)
	})
	if err != nil {
		return nil, err
	}
	return v.(*authsession.Credential).Clone(), nil
}

func (m *Manager) doRefresh(ctx context.Context, override string) (*authsession.Credential, error) {
	if m.backend == nil {
		return nil, fmt.Errorf("authsession/token: no renewal backend configured")
	}

	m.mu.Lock()
	value := override
	if value == "" && m.current != nil {
		value = m.current.RenewalValue
	}
	gen := m.generation
	m.mu.Unlock()

	if value == "" {
		return nil, authsession.ErrNoRenewalValue
	}

	start := m.now()
	delay := m.cfg.RetryInitialDelay
	var lastErr error

	for attempt := 0; attempt < m.cfg.MaxRetryAttempts; attempt++ {
		if attempt > 0 {
			// Full delay plus up to half again of jitter, so a burst of
			// clients does not hammer the endpoint in lockstep.
			jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
			if err := m.sleep(ctx, jittered); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * m.cfg.RetryBackoffFactor)
			m.metrics.RecordRenewalRetry()
		}

		cred, err := m.backend.Renew(ctx, value)
		if err == nil {
			m.metrics.RecordRenewal("success", m.now().Sub(start).Seconds())
			return cred, m.adopt(cred, gen)
		}
		lastErr = err

		if !authsession.IsTransient(err) {
			m.metrics.RecordRenewal("rejected", m.now().Sub(start).Seconds())
			return nil, &authsession.RenewalError{Transient: false, Attempts: attempt + 1, Err: err}
		}

		m.logger.Warn("transient renewal failure, retrying",
			"attempt", attempt+1,
			"max_attempts", m.cfg.MaxRetryAttempts,
			"error", err,
		)
	}

	m.metrics.RecordRenewal("exhausted", m.now().Sub(start).Seconds())
	return nil, &authsession.RenewalError{Transient: true, Attempts: m.cfg.MaxRetryAttempts, Err: lastErr}
}

// adopt installs a freshly renewed credential unless the session was
// cleared while the flight was in the air, in which case the result is
// dropped on the floor. The credential is persisted first and the
// generation re-checked under the lock before it becomes current, so a
// Clear racing a slow Save cannot be undone: the stale write is wiped
// and nothing is announced.
func (m *Manager) adopt(cred *authsession.Credential, gen uint64) error {
	if cred == nil || cred.AccessValue == "" {
		return authsession.ErrNoCredential
	}

	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		m.logger.Info("discarding renewal result: session cleared during flight")
		return nil
	}

	if err := m.persist(cred); err != nil {
		return err
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		if err := m.storage.Remove(m.cfg.TokenKey()); err != nil {
			m.logger.Warn("wipe of stale credential write failed", "error", err)
		}
		m.logger.Info("discarding renewal result: session cleared during flight")
		return nil
	}
	m.current = cred.Clone()
	m.storedAt = m.now()
	m.scheduleRenewalLocked(cred)
	m.mu.Unlock()

	if m.events != nil {
		m.events.Publish(authsession.TopicRefreshed, cred.Clone())
	}
	return nil
}

// Clear tears down the current credential. When revoke is set and a
// credential exists, its access value enters the revocation cache with
// an expiry taken from its own claims, or a fallback horizon when the
// claims are unusable. Clear is idempotent: a second call finds nothing
// to revoke and nothing to cancel.
func (m *Manager) Clear(revoke bool) error {
	m.mu.Lock()
	cred := m.current
	m.current = nil
	m.storedAt = time.Time{}
	m.generation++
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
	m.mu.Unlock()

	if revoke && cred != nil && cred.AccessValue != "" {
		expiry := m.now().Add(revocationFallbackHorizon)
		if claims, err := m.decoder.Decode(cred.AccessValue); err == nil {
			if exp, ok := claims.ExpiresAt(); ok {
				expiry = exp
			}
		}
		m.revoked.Add(cred.AccessValue, expiry)
	}

	var firstErr error
	for _, key := range []string{m.cfg.TokenKey(), m.cfg.SyncKey()} {
		if err := m.storage.Remove(key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("authsession/token: wipe %q: %w", key, err)
		}
	}

	if cred != nil && m.events != nil {
		m.events.Publish(authsession.TopicCleared, nil)
	}
	return firstErr
}

// Close cancels any pending pre-emptive renewal timer. The revocation
// cache is closed only if this manager created it.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
	m.mu.Unlock()
	if m.ownsRevoked {
		return m.revoked.Close()
	}
	return nil
}

// scheduleRenewalLocked arms the pre-emptive renewal timer for cred.
// renewIn is the time until the hard renewal threshold; the timer fires
// at renewIn scaled by the pre-emptive ratio so the flight starts early
// enough to absorb network latency. Caller holds m.mu.
func (m *Manager) scheduleRenewalLocked(cred *authsession.Credential) {
	if m.renewTimer != nil {
		m.renewTimer.Stop()
		m.renewTimer = nil
	}
	if cred.ExpiresIn <= 0 || m.backend == nil || cred.RenewalValue == "" {
		return
	}

	renewIn := time.Duration(cred.ExpiresIn)*time.Second - m.cfg.RenewalThreshold
	if renewIn < 0 {
		renewIn = 0
	}
	fireIn := time.Duration(float64(renewIn) * m.cfg.PreemptiveRatio)

	gen := m.generation
	m.renewTimer = time.AfterFunc(fireIn, func() { m.preemptiveRenew(gen) })
}

// preemptiveRenew is the timer-driven renewal path. Exhausting the retry
// budget here forces a logout: the credential is about to die and nobody
// is around to re-authenticate interactively.
func (m *Manager) preemptiveRenew(gen uint64) {
	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		return
	}

	if _, err := m.Refresh(context.Background()); err != nil {
		m.logger.Error("pre-emptive renewal failed, clearing session", "error", err)
		if m.events != nil {
			m.events.Publish(authsession.TopicRenewalFailed, err)
		}
		if clearErr := m.Clear(true); clearErr != nil {
			m.logger.Error("session clear after failed renewal", "error", clearErr)
		}
	}
}

// remaining computes the credential's remaining lifetime in whole
// seconds. The claims' expiry wins when decodable; opaque access values
// fall back to arithmetic on the install time.
func (m *Manager) remaining(cred *authsession.Credential, storedAt time.Time) (seconds int64, expired bool) {
	if claims, err := m.decoder.Decode(cred.AccessValue); err == nil {
		if ttl, ok := m.decoder.TimeToLive(claims); ok {
			return int64(ttl / time.Second), ttl <= 0
		}
		return cred.ExpiresIn, false // no expiry claim: never expires
	}
	if cred.ExpiresIn <= 0 {
		return cred.ExpiresIn, false
	}
	elapsed := m.now().Sub(storedAt)
	left := cred.ExpiresIn - int64(elapsed/time.Second)
	if left <= 0 {
		return 0, true
	}
	return left, false
}

// ctxSleep blocks for d or until ctx is done.
func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
