package config

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseDefaults(t *testing.T) {
	cfg := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil, envOf(nil))

	assert.Equal(t, 5060, cfg.Port)
	assert.Equal(t, TokenModeJWT, cfg.TokenMode)
	assert.Equal(t, 10*time.Minute, cfg.WakeLockTimeout)
	assert.Equal(t, filepath.Join("data", "prefs.yaml"), cfg.PrefsPath)
	assert.Equal(t, filepath.Join("data", "numbers.db"), cfg.NumbersDB)
	assert.Equal(t, filepath.Join("data", "call_recordings"), cfg.RecordingsDir())
	assert.NotEmpty(t, cfg.AdvertiseAddr)
	assert.Equal(t, cfg.AdvertiseAddr, cfg.Domain)
}

func TestEnvironmentOverridesFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args := []string{"-port", "5070", "-advertise", "10.0.0.5", "-data", "/tmp/flags"}
	env := envOf(map[string]string{
		"PORT":       "5080",
		"SIP_PROXY":  "sip.example.com:5060",
		"TOKEN_MODE": "GRPC",
		"DATA_DIR":   "/var/lib/softphone",
		"LOGLEVEL":   "debug",
	})

	cfg := parse(fs, args, env)

	assert.Equal(t, 5080, cfg.Port)
	assert.Equal(t, "10.0.0.5", cfg.AdvertiseAddr)
	assert.Equal(t, "sip.example.com:5060", cfg.Proxy)
	assert.Equal(t, TokenModeGRPC, cfg.TokenMode)
	assert.Equal(t, "/var/lib/softphone/prefs.yaml", cfg.PrefsPath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseTokenServer(t *testing.T) {
	cfg := parseTokenServer(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-ttl", "30m"}, envOf(map[string]string{
		"ACCOUNT_SID": "AC123",
		"AUTH_TOKEN":  "secret",
	}))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
	assert.Equal(t, "AC123", cfg.AccountSID)
	assert.Equal(t, "secret", cfg.AuthToken)
}
