package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "secret-token")
	t.Setenv("COMMAND_PREFIX", "!")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, "json", cfg.StorageDriver)
	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.Equal(t, 5*time.Second, cfg.HandlerTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, 16, cfg.WorkerLimit)
	assert.Equal(t, 24*time.Hour, cfg.KarmaWindow)
	assert.True(t, cfg.ReplyUnknown)
	assert.True(t, cfg.IgnoreBots)
	assert.False(t, cfg.AllowDM)
	assert.Equal(t, "the fire rise", cfg.StatusActivity)
}

func TestParse_MissingCredentials(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("COMMAND_PREFIX", "!")
	_, err := Parse()
	assert.ErrorIs(t, err, ErrMissingToken)

	t.Setenv("DISCORD_TOKEN", "secret-token")
	t.Setenv("COMMAND_PREFIX", "")
	_, err = Parse()
	assert.ErrorIs(t, err, ErrMissingPrefix)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "secret-token")
	t.Setenv("COMMAND_PREFIX", "b!")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_PATH", "/tmp/bane.db")
	t.Setenv("HANDLER_TIMEOUT", "750ms")
	t.Setenv("WORKER_LIMIT", "4")
	t.Setenv("ALLOW_DM", "true")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "b!", cfg.CommandPrefix)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.HandlerTimeout)
	assert.Equal(t, 4, cfg.WorkerLimit)
	assert.True(t, cfg.AllowDM)
}

func TestValidateRuntime(t *testing.T) {
	base := func() Config {
		return Config{
			DiscordToken:   "t",
			CommandPrefix:  "!",
			StorageDriver:  "json",
			HandlerTimeout: time.Second,
			ShutdownGrace:  10 * time.Second,
			WorkerLimit:    1,
			KarmaWindow:    time.Hour,
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.StorageDriver = "mongo"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.HandlerTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ShutdownGrace = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.ShutdownGrace = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.WorkerLimit = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.KarmaWindow = -time.Minute
	assert.Error(t, cfg.Validate())
}

func TestParse_RejectsZeroShutdownGrace(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "secret-token")
	t.Setenv("COMMAND_PREFIX", "!")
	t.Setenv("SHUTDOWN_GRACE", "0s")

	_, err := Parse()
	assert.ErrorContains(t, err, "SHUTDOWN_GRACE")
}

func TestString_HidesToken(t *testing.T) {
	cfg := Config{DiscordToken: "super-secret", CommandPrefix: "!"}
	assert.NotContains(t, cfg.String(), "super-secret")
}
