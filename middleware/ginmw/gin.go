// Package ginmw provides Gin HTTP middleware for services that embed the
// authsession SDK: inbound bearer values are checked against the token
// manager — structure, time claims and the revocation cache — and the
// decoded claims are exposed on the Gin context.
package ginmw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	authsession "github.com/chimerakang/authsession-go"
	"github.com/chimerakang/authsession-go/codec"
)

// Context keys for storing session data in gin.Context.
const (
	KeySubject = "authsession_subject"
	KeyClaims  = "authsession_claims"
)

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that validates bearer credentials through
// the token manager. On success, the decoded claims are stored in the
// context (retrievable via GetSubject and GetClaims). Responds with 401
// if the credential is missing, revoked or invalid.
func Auth(mgr authsession.TokenManager, dec *codec.Decoder, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		raw := extractBearerToken(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization credential"})
			return
		}

		if !mgr.Validate(&authsession.Credential{AccessValue: raw}) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}

		claims, err := dec.Decode(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeySubject, claims.Subject())

		c.Next()
	}
}

// RequireActive returns Gin middleware that rejects requests once the
// session tracker has expired, and counts each authenticated request as
// session activity.
func RequireActive(tracker authsession.SessionTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tracker.Active() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}
		tracker.RecordActivity()
		c.Next()
	}
}

// --- Context helpers ---

// GetSubject returns the authenticated subject from the Gin context.
func GetSubject(c *gin.Context) string {
	v, _ := c.Get(KeySubject)
	s, _ := v.(string)
	return s
}

// GetClaims returns the decoded claims from the Gin context.
func GetClaims(c *gin.Context) *authsession.DecodedClaims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*authsession.DecodedClaims)
	return cl
}

// --- internal helpers ---

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
