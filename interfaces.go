package authsession

import "context"

// Storage is pluggable key/value persistence for the credential pair and
// the idle-sync marker. Implementations: storage/memory (volatile),
// storage/file (durable per instance), storage/boltstore (durable per
// device), storage/cookie (ambient with cookie semantics).
//
// Available must be checked before first use: a backing medium may be
// disabled, and callers are expected to degrade to a volatile store
// rather than crash.
type Storage interface {
	// Save stores value under key, overwriting any previous value.
	Save(key, value string) error

	// Load returns the value for key. The second result is false when the
	// key is absent.
	Load(key string) (string, bool, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Clear removes every key held by this store.
	Clear() error

	// Available reports whether the backing medium is usable.
	Available() bool
}

// RenewalBackend exchanges a renewal value for a fresh credential pair.
// Implementations: renew/ (HTTP JSON endpoint), fake/ (testing).
//
// Errors of type *BackendError are classified by status code; any other
// error is treated as a transient network failure.
type RenewalBackend interface {
	Renew(ctx context.Context, renewalValue string) (*Credential, error)
}

// SyncTransport broadcasts SyncMessages to sibling execution contexts
// sharing a channel name. Implementations: broadcast.Noop (default,
// single-instance operation) and broadcast.Hub endpoints (in-process).
type SyncTransport interface {
	// Publish sends msg to every other context on the channel. The sender
	// does not receive its own messages.
	Publish(msg SyncMessage) error

	// Subscribe registers fn for incoming messages and returns a cancel
	// function removing the registration.
	Subscribe(fn func(SyncMessage)) (cancel func())

	Close() error
}

// EventBus is bounded-fanout publish/subscribe decoupling renewal, expiry
// and session-timeout signals from their consumers. Implementation: bus/.
type EventBus interface {
	// Subscribe registers a handler for topic. When a subscriber cap is
	// reached it returns ErrSubscriberLimit and a no-op cancel function.
	Subscribe(topic string, handler func(payload any) error) (cancel func(), err error)

	// Publish delivers payload to every topic subscriber. Handler errors
	// and panics are logged, never propagated to the publisher.
	Publish(topic string, payload any)

	// PublishAndWait delivers payload to every topic subscriber and
	// returns the aggregated handler failures. One failing handler does
	// not stop the others.
	PublishAndWait(ctx context.Context, topic string, payload any) error
}

// TokenManager owns the current credential pair: persistence, validation
// against the revocation cache, single-flight renewal with backoff, and
// pre-emptive renewal scheduling. Implementation: token/.
type TokenManager interface {
	// Store persists the credential and (re)schedules pre-emptive renewal.
	Store(cred *Credential) error

	// Load returns the current credential, preferring the in-memory copy
	// over storage. Returns ErrNoCredential when none exists.
	Load() (*Credential, error)

	// Validate reports whether the credential is structurally valid,
	// unexpired and not revoked.
	Validate(cred *Credential) bool

	// Refresh exchanges the renewal value for a fresh credential. At most
	// one renewal attempt is in flight at a time; concurrent callers
	// observe the result of the in-flight attempt.
	Refresh(ctx context.Context, renewalValue ...string) (*Credential, error)

	// Clear tears down the current credential, optionally recording its
	// access value in the revocation cache. Safe to call repeatedly.
	Clear(revoke bool) error

	Close() error
}

// SessionTracker tracks idle time with debounced activity signals and
// keeps sibling contexts consistent through a SyncTransport.
// Implementation: session/.
type SessionTracker interface {
	// Activate starts (or restarts) the session and broadcasts a login
	// message to sibling contexts.
	Activate()

	// RecordActivity extends the idle timer. Bursts within the debounce
	// window coalesce into one effective update.
	RecordActivity()

	// Active reports whether the session is currently active.
	Active() bool

	// Expire force-expires the session and broadcasts a logout message.
	Expire()

	// Resume re-checks elapsed wall-clock time after the process was
	// suspended, expiring immediately if the idle timeout passed.
	Resume()

	// OnTimeout registers a callback invoked when the session expires.
	OnTimeout(fn func()) (cancel func(), err error)

	// OnActivity registers a callback invoked on effective activity
	// updates. Registrations beyond the configured cap are rejected.
	OnActivity(fn func()) (cancel func(), err error)

	Close() error
}
