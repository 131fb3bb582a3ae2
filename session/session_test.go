package session_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/broadcast"
	"github.com/chimerakang/authsession-go/bus"
	"github.com/chimerakang/authsession-go/fake"
	"github.com/chimerakang/authsession-go/session"
)

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

func testConfig(timeout, debounce time.Duration) authsession.Config {
	cfg := authsession.NewConfig(authsession.ProfileDefault)
	cfg.IdleTimeout = timeout
	cfg.DebounceWindow = debounce
	return cfg
}

func newTracker(t *testing.T, cfg authsession.Config, opts ...session.Option) *session.Tracker {
	t.Helper()
	tr, err := session.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestActivateAndState(t *testing.T) {
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond))

	if tr.Active() {
		t.Fatal("tracker should start inactive")
	}

	tr.Activate()
	if !tr.Active() {
		t.Fatal("Active() = false after Activate, want true")
	}

	st := tr.State()
	if !st.Active {
		t.Error("State().Active = false, want true")
	}
	if st.CreatedAt.IsZero() || st.LastActivityAt.IsZero() {
		t.Error("State() timestamps should be set after Activate")
	}
	if st.Timeout != time.Hour {
		t.Errorf("State().Timeout = %v, want 1h", st.Timeout)
	}
}

func TestIdleTimeout_ExpiresSession(t *testing.T) {
	tr := newTracker(t, testConfig(60*time.Millisecond, 5*time.Millisecond))

	var timeouts atomic.Int32
	if _, err := tr.OnTimeout(func() { timeouts.Add(1) }); err != nil {
		t.Fatal(err)
	}

	tr.Activate()
	waitFor(t, func() bool { return !tr.Active() }, "session did not expire after the idle timeout")

	if got := timeouts.Load(); got != 1 {
		t.Errorf("timeout callback ran %d times, want 1", got)
	}
}

func TestActivityExtendsSession(t *testing.T) {
	tr := newTracker(t, testConfig(250*time.Millisecond, 10*time.Millisecond))
	tr.Activate()

	// Keep touching the session well past the bare timeout.
	stop := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(stop) {
		tr.RecordActivity()
		time.Sleep(50 * time.Millisecond)
	}
	if !tr.Active() {
		t.Fatal("steady activity should keep the session alive")
	}

	// Then go idle.
	waitFor(t, func() bool { return !tr.Active() }, "session did not expire once activity stopped")
}

func TestDebounce_CoalescesBursts(t *testing.T) {
	transport := fake.NewRecordingTransport()
	tr := newTracker(t, testConfig(time.Hour, 100*time.Millisecond), session.WithTransport(transport))

	var effective atomic.Int32
	if _, err := tr.OnActivity(func() { effective.Add(1) }); err != nil {
		t.Fatal(err)
	}

	tr.Activate()
	for i := 0; i < 10; i++ {
		tr.RecordActivity()
	}

	if got := effective.Load(); got != 1 {
		t.Errorf("activity callback ran %d times for one burst, want 1", got)
	}

	var activityMsgs int
	for _, msg := range transport.Messages() {
		if msg.Kind == authsession.SyncActivity {
			activityMsgs++
		}
	}
	if activityMsgs != 1 {
		t.Errorf("broadcast %d activity messages for one burst, want 1", activityMsgs)
	}
}

func TestDebounce_WindowReopens(t *testing.T) {
	tr := newTracker(t, testConfig(time.Hour, 20*time.Millisecond))

	var effective atomic.Int32
	if _, err := tr.OnActivity(func() { effective.Add(1) }); err != nil {
		t.Fatal(err)
	}

	tr.Activate()
	tr.RecordActivity()
	waitFor(t, func() bool {
		tr.RecordActivity()
		return effective.Load() >= 2
	}, "debounce window never reopened")
}

func TestRecordActivity_InactiveSessionIgnored(t *testing.T) {
	transport := fake.NewRecordingTransport()
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond), session.WithTransport(transport))

	tr.RecordActivity()

	if len(transport.Messages()) != 0 {
		t.Error("activity on an inactive session must not broadcast")
	}
}

func TestExpire_Idempotent(t *testing.T) {
	events := bus.New(0, 0)
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond), session.WithBus(events))

	var expiredEvents atomic.Int32
	events.Subscribe(authsession.TopicSessionExpired, func(any) error {
		expiredEvents.Add(1)
		return nil
	})

	var timeouts atomic.Int32
	tr.OnTimeout(func() { timeouts.Add(1) })

	tr.Activate()
	tr.Expire()
	tr.Expire()

	if got := timeouts.Load(); got != 1 {
		t.Errorf("timeout callback ran %d times, want 1", got)
	}
	if got := expiredEvents.Load(); got != 1 {
		t.Errorf("expired event published %d times, want 1", got)
	}
}

func TestResume_ExpiresAfterWallClockGap(t *testing.T) {
	clock := newTestClock()
	tr := newTracker(t, testConfig(30*time.Minute, time.Second), session.WithClock(clock.Now))

	tr.Activate()

	// Laptop lid closed for a short while: still fine.
	clock.Advance(10 * time.Minute)
	tr.Resume()
	if !tr.Active() {
		t.Fatal("session should survive a gap shorter than the timeout")
	}

	// Gone past the idle timeout on the wall clock.
	clock.Advance(30 * time.Minute)
	tr.Resume()
	if tr.Active() {
		t.Error("session should expire when the timeout passed while suspended")
	}
}

func TestCallbackCap(t *testing.T) {
	cfg := testConfig(time.Hour, 10*time.Millisecond)
	cfg.MaxActivityCallbacks = 2
	tr := newTracker(t, cfg)

	for i := 0; i < 2; i++ {
		if _, err := tr.OnTimeout(func() {}); err != nil {
			t.Fatalf("OnTimeout() %d error: %v", i, err)
		}
	}

	cancel, err := tr.OnTimeout(func() {})
	if !errors.Is(err, authsession.ErrSubscriberLimit) {
		t.Fatalf("OnTimeout() over cap error = %v, want ErrSubscriberLimit", err)
	}
	if cancel == nil {
		t.Fatal("rejected registration must still return a cancel function")
	}
	cancel()

	// Timeout and activity callbacks are capped independently.
	if _, err := tr.OnActivity(func() {}); err != nil {
		t.Errorf("OnActivity() error: %v", err)
	}
}

func TestCallbackCancel(t *testing.T) {
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond))

	var calls atomic.Int32
	cancel, err := tr.OnTimeout(func() { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	tr.Activate()
	tr.Expire()

	if got := calls.Load(); got != 0 {
		t.Errorf("cancelled callback ran %d times, want 0", got)
	}
}

func TestTimeoutCallbackPanicDoesNotStopOthers(t *testing.T) {
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond))

	var ran atomic.Bool
	tr.OnTimeout(func() { panic("callback exploded") })
	tr.OnTimeout(func() { ran.Store(true) })

	tr.Activate()
	tr.Expire()

	if !ran.Load() {
		t.Error("callback after the panicking one did not run")
	}
}

func TestSync_LogoutPropagatesWithoutRebroadcast(t *testing.T) {
	transport := fake.NewRecordingTransport()
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond), session.WithTransport(transport))

	tr.Activate()
	before := len(transport.Messages())

	transport.Inject(authsession.SyncMessage{Kind: authsession.SyncLogout, Timestamp: time.Now().UnixMilli()})

	if tr.Active() {
		t.Error("session should expire on a sibling's logout")
	}
	// An inbound logout is applied locally, never echoed back out.
	for _, msg := range transport.Messages()[before:] {
		if msg.Kind == authsession.SyncLogout {
			t.Error("inbound logout was re-broadcast")
		}
	}
}

func TestSync_SiblingActivityExtends(t *testing.T) {
	clock := newTestClock()
	transport := fake.NewRecordingTransport()
	tr := newTracker(t, testConfig(30*time.Minute, time.Second),
		session.WithTransport(transport), session.WithClock(clock.Now))

	tr.Activate()
	clock.Advance(20 * time.Minute)

	transport.Inject(authsession.SyncMessage{Kind: authsession.SyncActivity, Timestamp: clock.Now().UnixMilli()})

	// The sibling's activity reset the idle clock: another 20 minutes is
	// still within the timeout.
	clock.Advance(20 * time.Minute)
	tr.Resume()
	if !tr.Active() {
		t.Error("sibling activity should have extended the idle deadline")
	}
}

func TestSync_LoginReactivates(t *testing.T) {
	transport := fake.NewRecordingTransport()
	tr := newTracker(t, testConfig(time.Hour, 10*time.Millisecond), session.WithTransport(transport))

	transport.Inject(authsession.SyncMessage{Kind: authsession.SyncLogin, Timestamp: time.Now().UnixMilli()})

	if !tr.Active() {
		t.Error("session should activate on a sibling's login")
	}
}

func TestTwoContexts_StayInLockstep(t *testing.T) {
	hub := broadcast.NewHub()
	cfg := testConfig(time.Hour, 10*time.Millisecond)

	a := newTracker(t, cfg, session.WithTransport(hub.Join(cfg.ChannelName)))
	b := newTracker(t, cfg, session.WithTransport(hub.Join(cfg.ChannelName)))

	// Login in one context activates the other.
	a.Activate()
	if !b.Active() {
		t.Fatal("context b should activate when context a logs in")
	}

	// Logout in one context ends the session everywhere.
	b.Expire()
	if a.Active() {
		t.Error("context a should expire when context b logs out")
	}
	if b.Active() {
		t.Error("context b should be expired")
	}
}

func TestClose_DetachesFromTransport(t *testing.T) {
	transport := fake.NewRecordingTransport()
	tr, err := session.New(testConfig(time.Hour, 10*time.Millisecond), session.WithTransport(transport))
	if err != nil {
		t.Fatal(err)
	}

	tr.Activate()
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	transport.Inject(authsession.SyncMessage{Kind: authsession.SyncLogout})
	if !tr.Active() {
		t.Error("closed tracker should ignore sync messages")
	}
}

func TestClose_ResetsDebounceWindow(t *testing.T) {
	tr := newTracker(t, testConfig(time.Hour, time.Hour))

	tr.Activate()
	tr.RecordActivity() // opens a debounce window that will never elapse

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	var effective atomic.Int32
	if _, err := tr.OnActivity(func() { effective.Add(1) }); err != nil {
		t.Fatal(err)
	}

	// A tracker closed mid-window and brought back must not keep ignoring
	// activity.
	tr.Activate()
	tr.RecordActivity()
	if got := effective.Load(); got != 1 {
		t.Errorf("activity callback ran %d times after reactivation, want 1", got)
	}
}
