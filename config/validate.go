package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Sanitize trims values, expands paths and replaces out-of-range numbers
// with their defaults.
func (c *Config) Sanitize() error {
	var err error
	if c.Storage.TempDir, err = ExpandPath(strings.TrimSpace(c.Storage.TempDir)); err != nil {
		return fmt.Errorf("storage.temp_dir: %w", err)
	}
	if c.Storage.InboxDir, err = ExpandPath(strings.TrimSpace(c.Storage.InboxDir)); err != nil {
		return fmt.Errorf("storage.inbox_dir: %w", err)
	}
	if c.Server.CertFile, err = ExpandPath(strings.TrimSpace(c.Server.CertFile)); err != nil {
		return fmt.Errorf("server.cert_file: %w", err)
	}
	if c.Server.KeyFile, err = ExpandPath(strings.TrimSpace(c.Server.KeyFile)); err != nil {
		return fmt.Errorf("server.key_file: %w", err)
	}

	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Download.Tool = strings.TrimSpace(c.Download.Tool)
	c.Client.ServerURL = strings.TrimRight(strings.TrimSpace(c.Client.ServerURL), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	command := c.Worker.Command[:0]
	for _, arg := range c.Worker.Command {
		if arg = strings.TrimSpace(arg); arg != "" {
			command = append(command, arg)
		}
	}
	c.Worker.Command = command

	if c.Server.HeartbeatSeconds <= 0 {
		c.Server.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	if c.Worker.TimeoutSeconds < 0 {
		c.Worker.TimeoutSeconds = 0
	}
	if c.Worker.KillGraceSeconds <= 0 {
		c.Worker.KillGraceSeconds = defaultKillGraceSeconds
	}
	if c.Download.Tool == "" {
		c.Download.Tool = defaultDownloadTool
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Download.MaxDurationSeconds < 0 {
		c.Download.MaxDurationSeconds = 0
	}
	if c.Download.MaxBytes < 0 {
		c.Download.MaxBytes = 0
	}
	if c.Storage.InboxWorkers <= 0 {
		c.Storage.InboxWorkers = defaultInboxWorkers
	}
	if c.Storage.InboxQueueSize <= 0 {
		c.Storage.InboxQueueSize = defaultInboxQueueSize
	}
	if c.Storage.InboxSettleMS <= 0 {
		c.Storage.InboxSettleMS = defaultInboxSettleMS
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file must be set together")
	}
	if len(c.Worker.Command) == 0 {
		return errors.New("worker.command must name the transcription worker")
	}
	if c.Storage.TempDir == "" {
		return errors.New("storage.temp_dir must be set")
	}
	if c.Storage.InboxDir != "" && c.Storage.InboxDir == c.Storage.TempDir {
		return errors.New("storage.inbox_dir must differ from storage.temp_dir")
	}
	if c.Client.ServerURL != "" {
		u, err := url.Parse(c.Client.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("client.server_url %q must be an http(s) URL", c.Client.ServerURL)
		}
	}
	switch c.Logging.Format {
	case "auto", "text", "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be auto, text or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return nil
}
