// Package config loads relayscribe settings from a TOML file, an optional
// .env file and RELAYSCRIBE_* environment variables, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvPrefix prefixes every environment override, e.g. RELAYSCRIBE_SERVER_BIND.
const EnvPrefix = "RELAYSCRIBE_"

type Server struct {
	Bind     string `toml:"bind" env:"BIND"`
	CertFile string `toml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `toml:"key_file" env:"KEY_FILE"`
	// HeartbeatSeconds is the keepalive interval on live streams.
	HeartbeatSeconds       int `toml:"heartbeat_seconds" env:"HEARTBEAT_SECONDS"`
	MaxUploadMB            int `toml:"max_upload_mb" env:"MAX_UPLOAD_MB"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

type Worker struct {
	// Command is the argv prefix; the artifact path is appended.
	Command          []string `toml:"command" env:"COMMAND" envSeparator:" "`
	Env              []string `toml:"env" env:"ENV"`
	TimeoutSeconds   int      `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	KillGraceSeconds int      `toml:"kill_grace_seconds" env:"KILL_GRACE_SECONDS"`
}

type Download struct {
	Tool               string `toml:"tool" env:"TOOL"`
	TimeoutSeconds     int    `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxDurationSeconds int    `toml:"max_duration_seconds" env:"MAX_DURATION_SECONDS"`
	MaxBytes           int64  `toml:"max_bytes" env:"MAX_BYTES"`
}

type Storage struct {
	TempDir        string `toml:"temp_dir" env:"TEMP_DIR"`
	InboxDir       string `toml:"inbox_dir" env:"INBOX_DIR"`
	InboxWorkers   int    `toml:"inbox_workers" env:"INBOX_WORKERS"`
	InboxQueueSize int    `toml:"inbox_queue_size" env:"INBOX_QUEUE_SIZE"`
	// InboxSettleMS is how long a dropped file must stay unchanged before it is queued.
	InboxSettleMS int `toml:"inbox_settle_ms" env:"INBOX_SETTLE_MS"`
}

type Client struct {
	ServerURL string `toml:"server_url" env:"SERVER_URL"`
}

type Logging struct {
	Format string `toml:"format" env:"FORMAT"`
	Level  string `toml:"level" env:"LEVEL"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - Server: HTTP listener, TLS and stream keepalive
//   - Worker: transcription process command line and limits
//   - Download: the platform download tool and direct-fetch limits
//   - Storage: artifact directory and the optional watched inbox
//   - Client: defaults for the submit and record commands
//   - Logging: log format and level
type Config struct {
	Server   Server   `toml:"server" envPrefix:"SERVER_"`
	Worker   Worker   `toml:"worker" envPrefix:"WORKER_"`
	Download Download `toml:"download" envPrefix:"DOWNLOAD_"`
	Storage  Storage  `toml:"storage" envPrefix:"STORAGE_"`
	Client   Client   `toml:"client" envPrefix:"CLIENT_"`
	Logging  Logging  `toml:"logging" envPrefix:"LOG_"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/relayscribe/config.toml")
}

// Load builds the effective configuration: defaults, then the TOML file at
// path (or the default location), then .env, then the environment. A missing
// file is not an error. It returns the resolved file path and whether it
// existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, "", false, fmt.Errorf("load .env file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// HeartbeatInterval is the live stream keepalive period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Server.HeartbeatSeconds) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// MaxUploadBytes is the upload body limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// WorkerTimeout is zero when jobs are unbounded.
func (c *Config) WorkerTimeout() time.Duration {
	return time.Duration(c.Worker.TimeoutSeconds) * time.Second
}

func (c *Config) WorkerKillGrace() time.Duration {
	return time.Duration(c.Worker.KillGraceSeconds) * time.Second
}

func (c *Config) InboxSettle() time.Duration {
	return time.Duration(c.Storage.InboxSettleMS) * time.Millisecond
}

func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.Server.CertFile != "" && c.Server.KeyFile != ""
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}

// ExpandPath resolves a leading ~ and makes the path absolute. Empty stays empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is left untouched unless overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
