// Package authsession keeps a signed access credential and its renewal
// credential alive across a long-lived client process.
//
// The SDK defines interfaces for storage, renewal, cross-context sync and
// event fanout. Concrete implementations are injected via Option
// functions, making the root package independent of any specific backend.
//
// Example usage with the HTTP renewal backend and a volatile store:
//
//	cfg := authsession.NewConfig(authsession.ProfileInteractive)
//	client, err := authsession.NewClient(cfg,
//	    authsession.WithStorage(memory.New()),
//	    authsession.WithRenewalBackend(renew.New("https://auth.example.com/renew")),
//	    authsession.WithTokenManager(mgr),
//	    authsession.WithSessionTracker(tracker),
//	)
package authsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Client is the thin lifecycle orchestrator: it wires the token manager,
// session tracker and event bus together and exposes login/logout to
// callers. Service implementations are injected via Option functions.
type Client struct {
	config    Config
	logger    *slog.Logger
	storage   Storage
	backend   RenewalBackend
	transport SyncTransport
	bus       EventBus
	tokens    TokenManager
	sessions  SessionTracker
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithStorage sets the persistence implementation.
func WithStorage(s Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithRenewalBackend sets the renewal endpoint implementation.
func WithRenewalBackend(b RenewalBackend) Option {
	return func(c *Client) { c.backend = b }
}

// WithSyncTransport sets the cross-context sync implementation.
func WithSyncTransport(t SyncTransport) Option {
	return func(c *Client) { c.transport = t }
}

// WithEventBus sets the event bus implementation.
func WithEventBus(b EventBus) Option {
	return func(c *Client) { c.bus = b }
}

// WithTokenManager sets the token lifecycle implementation.
func WithTokenManager(m TokenManager) Option {
	return func(c *Client) { c.tokens = m }
}

// WithSessionTracker sets the session activity implementation.
func WithSessionTracker(t SessionTracker) Option {
	return func(c *Client) { c.sessions = t }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Storage returns the persistence implementation, or nil if not configured.
func (c *Client) Storage() Storage { return c.storage }

// Backend returns the renewal backend, or nil if not configured.
func (c *Client) Backend() RenewalBackend { return c.backend }

// Transport returns the sync transport, or nil if not configured.
func (c *Client) Transport() SyncTransport { return c.transport }

// Bus returns the event bus, or nil if not configured.
func (c *Client) Bus() EventBus { return c.bus }

// Tokens returns the token manager, or nil if not configured.
func (c *Client) Tokens() TokenManager { return c.tokens }

// Sessions returns the session tracker, or nil if not configured.
func (c *Client) Sessions() SessionTracker { return c.sessions }

// Login installs a freshly issued credential and activates the session.
func (c *Client) Login(ctx context.Context, cred *Credential) error {
	if c.tokens == nil {
		return errors.New("authsession: no token manager configured")
	}
	if err := c.tokens.Store(cred); err != nil {
		return err
	}
	if c.sessions != nil {
		c.sessions.Activate()
	}
	return nil
}

// Logout tears the session down: the current access value is revoked,
// storage is wiped and the session tracker force-expires. Safe to call
// when already logged out.
func (c *Client) Logout(ctx context.Context) error {
	var err error
	if c.tokens != nil {
		err = c.tokens.Clear(true)
	}
	if c.sessions != nil {
		c.sessions.Expire()
	}
	return err
}

// Close releases all resources held by the client. Any injected service
// that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []any{
		c.tokens, c.sessions, c.transport,
		c.bus, c.backend, c.storage,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
