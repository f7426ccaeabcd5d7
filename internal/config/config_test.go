package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petergeneric/whisperx-windows-service/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9977, cfg.Server.Port)
	assert.Equal(t, "apikeys.txt", cfg.Auth.KeyFile)
	assert.Equal(t, "whisperx", cfg.Tools.WhisperX)
	assert.Equal(t, "ffmpeg", cfg.Tools.FFmpeg)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout())

	require.Contains(t, cfg.Profiles, "default")
	assert.Equal(t, "whisperx", cfg.Profiles["default"].Engine)
	assert.Equal(t, "large-v3", cfg.Profiles["default"].Model)
	require.Contains(t, cfg.Profiles, "parakeet")
	assert.Equal(t, "parakeet", cfg.Profiles["parakeet"].Engine)

	require.NoError(t, cfg.Validate())
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
host = "0.0.0.0"
port = 8080

[expiry]
job_timeout = "2h"

[profiles.fast]
engine = "whisperx"
model = "small"
device = "cpu"
compute_type = "int8"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JobTimeout())

	// TOML adds profiles alongside the built-in ones.
	require.Contains(t, cfg.Profiles, "fast")
	assert.Equal(t, "small", cfg.Profiles["fast"].Model)
	assert.Equal(t, "int8", cfg.Profiles["fast"].ComputeType)
	assert.Contains(t, cfg.Profiles, "default")

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 8080
`), 0o644))

	t.Setenv("WX_SERVER_PORT", "9000")
	t.Setenv("WX_AUTH_KEY_FILE", "/etc/wx/keys")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/etc/wx/keys", cfg.Auth.KeyFile)
}

func TestLoadMultiWordEnvKeys(t *testing.T) {
	t.Setenv("WX_EXPIRY_JOB_TIMEOUT", "45m")
	t.Setenv("WX_EXPIRY_SWEEP_INTERVAL", "30s")
	t.Setenv("WX_QUEUE_POLL_INTERVAL", "250ms")
	t.Setenv("WX_TOOLS_PARAKEET_SCRIPT", "/opt/scripts/parakeet.py")
	t.Setenv("WX_PATHS_WORK_DIR", "/var/wx/work")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.JobTimeout())
	assert.Equal(t, 30*time.Second, cfg.SweepInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, "/opt/scripts/parakeet.py", cfg.Tools.ParakeetScript)
	assert.Equal(t, "/var/wx/work", cfg.Paths.WorkDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("no profiles", func(t *testing.T) {
		cfg := base()
		cfg.Profiles = nil
		assert.ErrorContains(t, cfg.Validate(), "no profiles")
	})

	t.Run("missing default profile", func(t *testing.T) {
		cfg := base()
		delete(cfg.Profiles, "default")
		assert.ErrorContains(t, cfg.Validate(), `"default"`)
	})

	t.Run("unknown engine", func(t *testing.T) {
		cfg := base()
		p := cfg.Profiles["default"]
		p.Engine = "deepgram"
		cfg.Profiles["default"] = p
		assert.ErrorContains(t, cfg.Validate(), "unknown engine")
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := base()
		cfg.Expiry.JobTimeout = "thirty minutes"
		assert.ErrorContains(t, cfg.Validate(), "expiry.job_timeout")
	})
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout())

	cfg.Queue.PollInterval = "-1s"
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval(), "non-positive falls back")
}
