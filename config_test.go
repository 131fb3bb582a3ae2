package authsession_test

import (
	"testing"
	"time"

	authsession "github.com/chimerakang/authsession-go"
)

func TestNewConfig_Profiles(t *testing.T) {
	def := authsession.NewConfig(authsession.ProfileDefault)
	if def.IdleTimeout != 30*time.Minute {
		t.Errorf("default IdleTimeout = %v, want 30m", def.IdleTimeout)
	}
	if def.MaxRetryAttempts != 3 {
		t.Errorf("default MaxRetryAttempts = %d, want 3", def.MaxRetryAttempts)
	}

	interactive := authsession.NewConfig(authsession.ProfileInteractive)
	if interactive.IdleTimeout >= def.IdleTimeout {
		t.Error("interactive profile should time out idle sessions faster than default")
	}
	if interactive.RenewalThreshold <= def.RenewalThreshold {
		t.Error("interactive profile should renew earlier than default")
	}

	background := authsession.NewConfig(authsession.ProfileBackground)
	if background.IdleTimeout <= def.IdleTimeout {
		t.Error("background profile should tolerate longer idle periods than default")
	}
}

func TestNewConfig_UnknownProfileFallsBack(t *testing.T) {
	got := authsession.NewConfig(authsession.Profile("no-such-profile"))
	def := authsession.NewConfig(authsession.ProfileDefault)
	if got != def {
		t.Error("unknown profile should resolve to the default profile")
	}
}

func TestValidate_FillsZeroFields(t *testing.T) {
	var cfg authsession.Config
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	def := authsession.NewConfig(authsession.ProfileDefault)
	if cfg.RenewalThreshold != def.RenewalThreshold {
		t.Errorf("RenewalThreshold = %v, want default %v", cfg.RenewalThreshold, def.RenewalThreshold)
	}
	if cfg.StorageKeyPrefix != def.StorageKeyPrefix {
		t.Errorf("StorageKeyPrefix = %q, want default %q", cfg.StorageKeyPrefix, def.StorageKeyPrefix)
	}
	if cfg.ChannelName != def.ChannelName {
		t.Errorf("ChannelName = %q, want default %q", cfg.ChannelName, def.ChannelName)
	}
}

func TestValidate_KeepsExplicitValues(t *testing.T) {
	cfg := authsession.Config{IdleTimeout: 5 * time.Minute}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.IdleTimeout != 5*time.Minute {
		t.Errorf("IdleTimeout = %v, want the explicit 5m", cfg.IdleTimeout)
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		cfg  authsession.Config
	}{
		{"ratio above one", authsession.Config{PreemptiveRatio: 1.5}},
		{"negative ratio", authsession.Config{PreemptiveRatio: -0.1}},
		{"backoff factor below one", authsession.Config{RetryBackoffFactor: 0.5}},
		{"negative revocation capacity", authsession.Config{RevocationCacheMaxEntries: -1}},
		{"negative decode cache", authsession.Config{DecodeCacheSize: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestStorageKeys(t *testing.T) {
	cfg := authsession.NewConfig(authsession.ProfileDefault)
	if got := cfg.TokenKey(); got != "authsession.token" {
		t.Errorf("TokenKey() = %q, want authsession.token", got)
	}
	if got := cfg.SyncKey(); got != "authsession.sync" {
		t.Errorf("SyncKey() = %q, want authsession.sync", got)
	}

	cfg.StorageKeyPrefix = "myapp"
	if got := cfg.TokenKey(); got != "myapp.token" {
		t.Errorf("TokenKey() = %q, want myapp.token", got)
	}
}
