package authsession

import (
	"fmt"
	"time"
)

// Profile names a predefined configuration. Profiles form a small closed
// set resolved at construction time into a single validated Config; there
// is no dynamic preset merging.
type Profile string

const (
	// ProfileDefault balances renewal eagerness against request volume.
	ProfileDefault Profile = "default"

	// ProfileInteractive renews earlier and times out idle sessions
	// faster, for user-facing clients.
	ProfileInteractive Profile = "interactive"

	// ProfileBackground tolerates long idle periods and renews lazily,
	// for daemon-style clients.
	ProfileBackground Profile = "background"
)

// Config holds every tunable of the lifecycle subsystem.
// Zero values are filled in from ProfileDefault by Validate.
type Config struct {
	// RenewalThreshold is how long before expiry the credential must be
	// renewed.
	RenewalThreshold time.Duration

	// PreemptiveRatio scales the renewal timer below the hard threshold
	// so renewal starts early enough to absorb network latency.
	// Must be in (0, 1].
	PreemptiveRatio float64

	// IdleTimeout expires the session after this much inactivity.
	IdleTimeout time.Duration

	// DebounceWindow coalesces bursts of activity signals into one
	// effective update.
	DebounceWindow time.Duration

	// ClockTolerance is the leeway applied to time-claim checks.
	ClockTolerance time.Duration

	// RevocationCacheMaxEntries bounds the revocation cache. Insertion at
	// capacity evicts the entry with the nearest expiry.
	RevocationCacheMaxEntries int

	// RevocationSweepInterval is how often expired revocations are swept.
	RevocationSweepInterval time.Duration

	// MaxSubscribersPerTopic and MaxGlobalSubscribers cap the event bus.
	MaxSubscribersPerTopic int
	MaxGlobalSubscribers   int

	// MaxActivityCallbacks caps callback registrations on the tracker.
	MaxActivityCallbacks int

	// MaxRetryAttempts bounds renewal requests per refresh flight.
	MaxRetryAttempts int

	// RetryInitialDelay is the first backoff delay; each subsequent delay
	// is multiplied by RetryBackoffFactor and jittered.
	RetryInitialDelay  time.Duration
	RetryBackoffFactor float64

	// DecodeCacheSize bounds the codec's LRU decode cache. Zero disables
	// caching entirely with no behavior change.
	DecodeCacheSize int

	// StorageKeyPrefix namespaces the two storage keys so they cannot
	// collide with unrelated data in a shared medium.
	StorageKeyPrefix string

	// ChannelName identifies the cross-context sync channel. Every
	// context of one logical application instance must use the same name.
	ChannelName string
}

// profiles is the closed preset table.
var profiles = map[Profile]Config{
	ProfileDefault: {
		RenewalThreshold:          5 * time.Minute,
		PreemptiveRatio:           0.8,
		IdleTimeout:               30 * time.Minute,
		DebounceWindow:            1 * time.Second,
		ClockTolerance:            0,
		RevocationCacheMaxEntries: 1000,
		RevocationSweepInterval:   1 * time.Minute,
		MaxSubscribersPerTopic:    32,
		MaxGlobalSubscribers:      256,
		MaxActivityCallbacks:      16,
		MaxRetryAttempts:          3,
		RetryInitialDelay:         500 * time.Millisecond,
		RetryBackoffFactor:        2.0,
		DecodeCacheSize:           128,
		StorageKeyPrefix:          "authsession",
		ChannelName:               "authsession.sync",
	},
	ProfileInteractive: {
		RenewalThreshold:          10 * time.Minute,
		PreemptiveRatio:           0.7,
		IdleTimeout:               15 * time.Minute,
		DebounceWindow:            300 * time.Millisecond,
		ClockTolerance:            0,
		RevocationCacheMaxEntries: 1000,
		RevocationSweepInterval:   30 * time.Second,
		MaxSubscribersPerTopic:    32,
		MaxGlobalSubscribers:      256,
		MaxActivityCallbacks:      16,
		MaxRetryAttempts:          5,
		RetryInitialDelay:         250 * time.Millisecond,
		RetryBackoffFactor:        2.0,
		DecodeCacheSize:           128,
		StorageKeyPrefix:          "authsession",
		ChannelName:               "authsession.sync",
	},
	ProfileBackground: {
		RenewalThreshold:          2 * time.Minute,
		PreemptiveRatio:           0.9,
		IdleTimeout:               12 * time.Hour,
		DebounceWindow:            5 * time.Second,
		ClockTolerance:            30 * time.Second,
		RevocationCacheMaxEntries: 100,
		RevocationSweepInterval:   5 * time.Minute,
		MaxSubscribersPerTopic:    16,
		MaxGlobalSubscribers:      64,
		MaxActivityCallbacks:      8,
		MaxRetryAttempts:          6,
		RetryInitialDelay:         1 * time.Second,
		RetryBackoffFactor:        2.0,
		DecodeCacheSize:           16,
		StorageKeyPrefix:          "authsession",
		ChannelName:               "authsession.sync",
	},
}

// NewConfig resolves a named profile into a Config. Unknown profiles
// resolve to ProfileDefault.
func NewConfig(p Profile) Config {
	cfg, ok := profiles[p]
	if !ok {
		cfg = profiles[ProfileDefault]
	}
	return cfg
}

// Validate fills zero-valued fields from ProfileDefault and rejects
// out-of-range settings.
func (c *Config) Validate() error {
	def := profiles[ProfileDefault]

	if c.RenewalThreshold == 0 {
		c.RenewalThreshold = def.RenewalThreshold
	}
	if c.PreemptiveRatio == 0 {
		c.PreemptiveRatio = def.PreemptiveRatio
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.DebounceWindow == 0 {
		c.DebounceWindow = def.DebounceWindow
	}
	if c.RevocationCacheMaxEntries == 0 {
		c.RevocationCacheMaxEntries = def.RevocationCacheMaxEntries
	}
	if c.RevocationSweepInterval == 0 {
		c.RevocationSweepInterval = def.RevocationSweepInterval
	}
	if c.MaxSubscribersPerTopic == 0 {
		c.MaxSubscribersPerTopic = def.MaxSubscribersPerTopic
	}
	if c.MaxGlobalSubscribers == 0 {
		c.MaxGlobalSubscribers = def.MaxGlobalSubscribers
	}
	if c.MaxActivityCallbacks == 0 {
		c.MaxActivityCallbacks = def.MaxActivityCallbacks
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = def.MaxRetryAttempts
	}
	if c.RetryInitialDelay == 0 {
		c.RetryInitialDelay = def.RetryInitialDelay
	}
	if c.RetryBackoffFactor == 0 {
		c.RetryBackoffFactor = def.RetryBackoffFactor
	}
	if c.StorageKeyPrefix == "" {
		c.StorageKeyPrefix = def.StorageKeyPrefix
	}
	if c.ChannelName == "" {
		c.ChannelName = def.ChannelName
	}

	if c.PreemptiveRatio < 0 || c.PreemptiveRatio > 1 {
		return fmt.Errorf("authsession: PreemptiveRatio must be in (0, 1], got %v", c.PreemptiveRatio)
	}
	if c.RetryBackoffFactor < 1 {
		return fmt.Errorf("authsession: RetryBackoffFactor must be >= 1, got %v", c.RetryBackoffFactor)
	}
	if c.RevocationCacheMaxEntries < 0 {
		return fmt.Errorf("authsession: RevocationCacheMaxEntries must be >= 0, got %d", c.RevocationCacheMaxEntries)
	}
	if c.DecodeCacheSize < 0 {
		return fmt.Errorf("authsession: DecodeCacheSize must be >= 0, got %d", c.DecodeCacheSize)
	}
	return nil
}

// TokenKey is the namespaced storage key for the credential pair.
func (c Config) TokenKey() string { return c.StorageKeyPrefix + ".token" }

// SyncKey is the namespaced storage key for the idle-sync marker.
func (c Config) SyncKey() string { return c.StorageKeyPrefix + ".sync" }
