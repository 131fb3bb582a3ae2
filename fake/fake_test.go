package fake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/fake"
)

func TestBackend_PlaysBackScript(t *testing.T) {
	failure := &authsession.BackendError{StatusCode: 500, Body: "down"}
	cred := &authsession.Credential{AccessValue: "fresh", ExpiresIn: 3600}
	b := fake.NewBackend(
		fake.Response{Err: failure},
		fake.Response{Cred: cred},
	)

	if _, err := b.Renew(context.Background(), "rv"); !errors.Is(err, failure) {
		t.Errorf("first Renew() error = %v, want scripted failure", err)
	}

	got, err := b.Renew(context.Background(), "rv")
	if err != nil {
		t.Fatalf("second Renew() error: %v", err)
	}
	if got.AccessValue != "fresh" {
		t.Errorf("AccessValue = %q, want fresh", got.AccessValue)
	}
	if got == cred {
		t.Error("Renew() should hand out a copy, not the scripted value itself")
	}

	// The last response repeats once the script runs out.
	if _, err := b.Renew(context.Background(), "rv"); err != nil {
		t.Errorf("third Renew() error: %v", err)
	}
	if b.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", b.Calls())
	}
}

func TestBackend_EmptyScriptRejects(t *testing.T) {
	b := fake.NewBackend()
	if _, err := b.Renew(context.Background(), "rv"); err == nil {
		t.Fatal("Renew() on an empty script expected error, got nil")
	}
}

func TestBackend_DelayHonorsContext(t *testing.T) {
	b := fake.NewBackend(fake.Response{
		Cred:  &authsession.Credential{AccessValue: "slow"},
		Delay: time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.Renew(ctx, "rv"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Renew() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRecordingTransport(t *testing.T) {
	tr := fake.NewRecordingTransport()

	var received []authsession.SyncMessage
	cancel := tr.Subscribe(func(msg authsession.SyncMessage) {
		received = append(received, msg)
	})

	tr.Publish(authsession.SyncMessage{Kind: authsession.SyncActivity})
	if msgs := tr.Messages(); len(msgs) != 1 || msgs[0].Kind != authsession.SyncActivity {
		t.Errorf("Messages() = %v, want the published activity message", msgs)
	}

	// Publishing records without delivering locally; Inject simulates a
	// sibling context.
	if len(received) != 0 {
		t.Errorf("local publish delivered %d messages, want 0", len(received))
	}
	tr.Inject(authsession.SyncMessage{Kind: authsession.SyncLogout})
	if len(received) != 1 || received[0].Kind != authsession.SyncLogout {
		t.Errorf("received %v, want the injected logout", received)
	}

	cancel()
	tr.Inject(authsession.SyncMessage{Kind: authsession.SyncLogout})
	if len(received) != 1 {
		t.Errorf("cancelled subscriber received %d messages, want 1", len(received))
	}
}

func TestUnavailableStorage(t *testing.T) {
	var s authsession.Storage = fake.UnavailableStorage{}

	if s.Available() {
		t.Error("Available() = true, want false")
	}
	if err := s.Save("k", "v"); !errors.Is(err, authsession.ErrStorageUnavailable) {
		t.Errorf("Save() error = %v, want ErrStorageUnavailable", err)
	}
	if _, _, err := s.Load("k"); !errors.Is(err, authsession.ErrStorageUnavailable) {
		t.Errorf("Load() error = %v, want ErrStorageUnavailable", err)
	}
}
