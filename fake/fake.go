// Package fake provides in-memory implementations of the authsession
// interfaces for testing: a scripted renewal backend, a storage that
// reports itself unavailable, and a transport that records what was
// broadcast. Use these in unit tests to avoid network calls and real
// media.
package fake

import (
	"context"
	"sync"
	"time"

	authsession "github.com/chimerakang/authsession-go"
)

// Response is one scripted renewal outcome.
type Response struct {
	Cred  *authsession.Credential
	Err   error
	Delay time.Duration
}

// Backend implements authsession.RenewalBackend with scripted responses,
// consumed in order; the final response repeats once the script runs
// out. The zero value rejects every call.
type Backend struct {
	mu        sync.Mutex
	responses []Response
	calls     int
}

var _ authsession.RenewalBackend = (*Backend)(nil)

// NewBackend creates a backend that plays back responses in order.
func NewBackend(responses ...Response) *Backend {
	return &Backend{responses: responses}
}

// Renew plays back the next scripted response.
func (b *Backend) Renew(ctx context.Context, renewalValue string) (*authsession.Credential, error) {
	b.mu.Lock()
	idx := b.calls
	b.calls++
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	var resp Response
	if idx >= 0 {
		resp = b.responses[idx]
	} else {
		resp = Response{Err: &authsession.BackendError{StatusCode: 500, Body: "no scripted response"}}
	}
	b.mu.Unlock()

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Cred.Clone(), nil
}

// Calls returns how many renewal requests were issued.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// UnavailableStorage implements authsession.Storage but reports the
// medium as unusable, for exercising degradation paths.
type UnavailableStorage struct{}

var _ authsession.Storage = (*UnavailableStorage)(nil)

func (UnavailableStorage) Save(string, string) error { return authsession.ErrStorageUnavailable }
func (UnavailableStorage) Load(string) (string, bool, error) {
	return "", false, authsession.ErrStorageUnavailable
}
func (UnavailableStorage) Remove(string) error { return authsession.ErrStorageUnavailable }
func (UnavailableStorage) Clear() error        { return authsession.ErrStorageUnavailable }
func (UnavailableStorage) Available() bool     { return false }

// RecordingTransport implements authsession.SyncTransport and remembers
// every published message.
type RecordingTransport struct {
	mu       sync.Mutex
	messages []authsession.SyncMessage
	handlers []func(authsession.SyncMessage)
}

var _ authsession.SyncTransport = (*RecordingTransport)(nil)

// NewRecordingTransport creates an empty recording transport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

func (t *RecordingTransport) Publish(msg authsession.SyncMessage) error {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return nil
}

func (t *RecordingTransport) Subscribe(fn func(authsession.SyncMessage)) func() {
	t.mu.Lock()
	t.handlers = append(t.handlers, fn)
	idx := len(t.handlers) - 1
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		if idx < len(t.handlers) {
			t.handlers[idx] = nil
		}
		t.mu.Unlock()
	}
}

func (t *RecordingTransport) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (t *RecordingTransport) Messages() []authsession.SyncMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]authsession.SyncMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Inject delivers msg to local subscribers as if a sibling context had
// broadcast it.
func (t *RecordingTransport) Inject(msg authsession.SyncMessage) {
	t.mu.Lock()
	handlers := make([]func(authsession.SyncMessage), len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()
	for _, fn := range handlers {
		if fn != nil {
			fn(msg)
		}
	}
}
