// Package codec decodes and validates the structured claims embedded in
// an access credential.
//
// Decoding is structural only: the three dot-delimited segments are
// split and the header and payload are base64url/JSON decoded, but the
// signature is never verified — the issuing backend is trusted for
// signature cryptography. Validation covers time claims and identity
// claims (issuer, audience, subject) plus an algorithm allow-list.
package codec

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	authsession "github.com/chimerakang/authsession-go"
)

// Decoder decodes raw access values into claims. Decoding results may be
// cached by raw string (credentials are immutable once issued); the
// cache is purely an optimization and never changes observable behavior.
type Decoder struct {
	parser *jwt.Parser
	cache  *lruCache
	now    func() time.Time
}

// Option configures the Decoder.
type Option func(*Decoder)

// WithCacheSize bounds the decode cache. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.cache = newLRUCache(n)
		} else {
			d.cache = nil
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// New creates a Decoder. Caching is disabled unless WithCacheSize is given.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		parser: jwt.NewParser(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode splits raw into header, payload and signature segments and
// decodes the structured parts. Returns ErrMalformedCredential when the
// encoding does not split into exactly three dot-delimited segments or
// either structured segment fails decoding.
func (d *Decoder) Decode(raw string) (*authsession.DecodedClaims, error) {
	if d.cache != nil {
		if cached, ok := d.cache.get(raw); ok {
			return cached, nil
		}
	}

	token, parts, err := d.parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authsession.ErrMalformedCredential, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims shape", authsession.ErrMalformedCredential)
	}

	claims := &authsession.DecodedClaims{
		Header:    token.Header,
		Claims:    mapClaims,
		Signature: parts[2],
	}

	if d.cache != nil {
		d.cache.add(raw, claims)
	}
	return claims, nil
}

// IsExpired reports whether the expiry claim, extended by tolerance, lies
// in the past. A claims set without an expiry claim is never expired.
func (d *Decoder) IsExpired(claims *authsession.DecodedClaims, tolerance time.Duration) bool {
	exp, ok := claims.ExpiresAt()
	if !ok {
		return false
	}
	return exp.Add(tolerance).Before(d.now())
}

// TimeToLive returns the remaining lifetime of the claims, clamped at
// zero. ok is false when there is no expiry claim, meaning the
// credential never expires.
func (d *Decoder) TimeToLive(claims *authsession.DecodedClaims) (ttl time.Duration, ok bool) {
	exp, ok := claims.ExpiresAt()
	if !ok {
		return 0, false
	}
	ttl = exp.Sub(d.now())
	if ttl < 0 {
		ttl = 0
	}
	return ttl, true
}

// ValidateOptions selects which rules Validate applies. Zero-valued
// fields skip their rule; time-claim checks always run.
type ValidateOptions struct {
	// Issuer, if set, must equal the issuer claim.
	Issuer string

	// Audience, if set, must be a member of the audience claim.
	Audience string

	// Subject, if set, must equal the subject claim.
	Subject string

	// AllowedAlgorithms, if non-empty, must contain the header algorithm.
	AllowedAlgorithms []string

	// ClockTolerance is leeway applied to expiry and not-before checks.
	ClockTolerance time.Duration
}

// Validate applies the requested rules in a fixed order — structure,
// expiry, not-before, issuer, audience, subject, algorithm — and returns
// the first failing rule as a *ValidationError with a stable code.
// Repeated calls on the same input produce the same code.
func (d *Decoder) Validate(claims *authsession.DecodedClaims, opts ValidateOptions) error {
	if claims == nil || claims.Claims == nil {
		return &authsession.ValidationError{
			Code:   authsession.CodeMalformed,
			Reason: "claims are missing or undecodable",
		}
	}

	if d.IsExpired(claims, opts.ClockTolerance) {
		exp, _ := claims.ExpiresAt()
		return &authsession.ValidationError{
			Code:   authsession.CodeExpired,
			Reason: fmt.Sprintf("credential expired at %s", exp.Format(time.RFC3339)),
		}
	}

	if nbf, ok := claims.NotBefore(); ok {
		if d.now().Add(opts.ClockTolerance).Before(nbf) {
			return &authsession.ValidationError{
				Code:   authsession.CodeNotYetValid,
				Reason: fmt.Sprintf("credential not valid before %s", nbf.Format(time.RFC3339)),
			}
		}
	}

	if opts.Issuer != "" && claims.Issuer() != opts.Issuer {
		return &authsession.ValidationError{
			Code:   authsession.CodeIssuerMismatch,
			Reason: fmt.Sprintf("issuer %q does not match expected %q", claims.Issuer(), opts.Issuer),
		}
	}

	if opts.Audience != "" && !slices.Contains(claims.Audience(), opts.Audience) {
		return &authsession.ValidationError{
			Code:   authsession.CodeAudienceMismatch,
			Reason: fmt.Sprintf("audience claim does not contain %q", opts.Audience),
		}
	}

	if opts.Subject != "" && claims.Subject() != opts.Subject {
		return &authsession.ValidationError{
			Code:   authsession.CodeSubjectMismatch,
			Reason: fmt.Sprintf("subject %q does not match expected %q", claims.Subject(), opts.Subject),
		}
	}

	if len(opts.AllowedAlgorithms) > 0 && !slices.Contains(opts.AllowedAlgorithms, claims.Algorithm()) {
		return &authsession.ValidationError{
			Code:   authsession.CodeAlgorithmNotAllowed,
			Reason: fmt.Sprintf("algorithm %q is not on the allow-list", claims.Algorithm()),
		}
	}

	return nil
}
