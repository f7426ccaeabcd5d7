package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/petergeneric/whisperx-windows-service/internal/core/engine"
)

// Config is immutable after Load; nothing mutates it at runtime.
type Config struct {
	Server   ServerConfig              `koanf:"server"`
	Auth     AuthConfig                `koanf:"auth"`
	Paths    PathsConfig               `koanf:"paths"`
	Tools    ToolsConfig               `koanf:"tools"`
	Queue    QueueConfig               `koanf:"queue"`
	Expiry   ExpiryConfig              `koanf:"expiry"`
	Logging  LoggingConfig             `koanf:"logging"`
	Profiles map[string]engine.Profile `koanf:"profiles"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type AuthConfig struct {
	KeyFile string `koanf:"key_file"`
}

type PathsConfig struct {
	UploadDir string `koanf:"upload_dir"`
	WorkDir   string `koanf:"work_dir"`
}

type ToolsConfig struct {
	WhisperX       string `koanf:"whisperx"`
	Python         string `koanf:"python"`
	ParakeetScript string `koanf:"parakeet_script"`
	FFmpeg         string `koanf:"ffmpeg"`
}

type QueueConfig struct {
	PollInterval string `koanf:"poll_interval"`
}

type ExpiryConfig struct {
	SweepInterval string `koanf:"sweep_interval"`
	JobTimeout    string `koanf:"job_timeout"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads config from a TOML file (if provided) then overlays env vars.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// Env overlay: WX_SERVER_PORT -> server.port. Empty values are
	// skipped so unset vars never clobber the TOML file.
	if err := k.Load(env.ProviderWithValue("WX_", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		mapped := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(key, "WX_")),
			"_", ".",
		)
		return mapped, value
	}), nil); err != nil {
		return nil, err
	}

	// Multi-word keys the underscore mapping above would mangle.
	for envVar, key := range map[string]string{
		"WX_AUTH_KEY_FILE":         "auth.key_file",
		"WX_PATHS_UPLOAD_DIR":      "paths.upload_dir",
		"WX_PATHS_WORK_DIR":        "paths.work_dir",
		"WX_TOOLS_PARAKEET_SCRIPT": "tools.parakeet_script",
		"WX_QUEUE_POLL_INTERVAL":   "queue.poll_interval",
		"WX_EXPIRY_SWEEP_INTERVAL": "expiry.sweep_interval",
		"WX_EXPIRY_JOB_TIMEOUT":    "expiry.job_timeout",
	} {
		if v := os.Getenv(envVar); v != "" {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the parts of the config that would otherwise fail at an
// awkward time (first job admission or first sweep tick).
func (c *Config) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("no profiles configured")
	}
	if _, ok := c.Profiles["default"]; !ok {
		return fmt.Errorf("profile %q must exist", "default")
	}
	for name, p := range c.Profiles {
		switch p.Engine {
		case "whisperx", "parakeet":
		default:
			return fmt.Errorf("profile %q: unknown engine %q", name, p.Engine)
		}
	}
	for _, d := range []struct{ key, val string }{
		{"queue.poll_interval", c.Queue.PollInterval},
		{"expiry.sweep_interval", c.Expiry.SweepInterval},
		{"expiry.job_timeout", c.Expiry.JobTimeout},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

// PollInterval returns the parsed queue poll interval.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Queue.PollInterval, 500*time.Millisecond)
}

// SweepInterval returns the parsed expiry sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.Expiry.SweepInterval, time.Minute)
}

// JobTimeout returns the parsed job expiry timeout.
func (c *Config) JobTimeout() time.Duration {
	return parseDuration(c.Expiry.JobTimeout, 30*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
