package authsession

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the access/renewal value pair issued after authentication.
// A Credential is immutable once issued: renewal replaces it wholesale and
// logout destroys it.
type Credential struct {
	// AccessValue is the signed access credential presented to services.
	AccessValue string `json:"access_value"`

	// RenewalValue is the long-lived value exchanged for a fresh pair.
	RenewalValue string `json:"renewal_value,omitempty"`

	// ExpiresIn is the remaining lifetime of AccessValue in seconds at the
	// time the credential was issued or loaded.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Kind is the credential type reported by the issuer (e.g. "Bearer").
	Kind string `json:"kind,omitempty"`

	Scope string `json:"scope,omitempty"`
}

// Clone returns a copy of the credential, or nil for a nil receiver.
// The lifecycle manager hands out copies so its current credential is
// never aliased by callers.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// DecodedClaims is the structured content of an access credential: the
// decoded header and payload plus the raw signature segment. It is derived
// on demand by codec.Decoder and never mutated.
//
// No signature verification happens on the client side — the issuing
// backend is trusted for that. DecodedClaims carries structural and time
// claims only.
type DecodedClaims struct {
	Header    map[string]any
	Claims    jwt.MapClaims
	Signature string
}

// ExpiresAt returns the expiry time claim, if present.
func (c *DecodedClaims) ExpiresAt() (time.Time, bool) {
	return c.numericDate("exp")
}

// NotBefore returns the not-before time claim, if present.
func (c *DecodedClaims) NotBefore() (time.Time, bool) {
	return c.numericDate("nbf")
}

// IssuedAt returns the issued-at time claim, if present.
func (c *DecodedClaims) IssuedAt() (time.Time, bool) {
	return c.numericDate("iat")
}

// Subject returns the subject claim, or "".
func (c *DecodedClaims) Subject() string {
	s, _ := c.Claims.GetSubject()
	return s
}

// Issuer returns the issuer claim, or "".
func (c *DecodedClaims) Issuer() string {
	s, _ := c.Claims.GetIssuer()
	return s
}

// Audience returns the audience claim as a string slice. A single-string
// audience is returned as a one-element slice.
func (c *DecodedClaims) Audience() []string {
	aud, err := c.Claims.GetAudience()
	if err != nil {
		return nil
	}
	return []string(aud)
}

// Algorithm returns the signing algorithm declared in the header, or "".
func (c *DecodedClaims) Algorithm() string {
	if c == nil || c.Header == nil {
		return ""
	}
	alg, _ := c.Header["alg"].(string)
	return alg
}

func (c *DecodedClaims) numericDate(name string) (time.Time, bool) {
	if c == nil || c.Claims == nil {
		return time.Time{}, false
	}
	v, ok := c.Claims[name]
	if !ok {
		return time.Time{}, false
	}
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(int64(f), 0), true
	default:
		return time.Time{}, false
	}
}

// SyncKind identifies the purpose of a cross-context sync message.
type SyncKind string

const (
	SyncActivity SyncKind = "activity"
	SyncLogout   SyncKind = "logout"
	SyncLogin    SyncKind = "login"
	SyncRefresh  SyncKind = "refresh"
)

// SyncMessage keeps same-origin execution contexts in lockstep. It is
// transient: broadcast to sibling contexts and discarded after handling,
// never persisted.
type SyncMessage struct {
	Kind      SyncKind       `json:"kind"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Data      map[string]any `json:"data,omitempty"`
}

// Event topics published on the event bus by the lifecycle components.
const (
	TopicRefreshed       = "credential.refreshed"
	TopicCleared         = "credential.cleared"
	TopicRenewalFailed   = "credential.renewal_failed"
	TopicSessionExpired  = "session.expired"
	TopicSessionActivity = "session.activity"
)
