package config

const (
	defaultBind                   = "127.0.0.1:8090"
	defaultHeartbeatSeconds       = 15
	defaultMaxUploadMB            = 512
	defaultShutdownTimeoutSeconds = 30
	defaultKillGraceSeconds       = 5
	defaultDownloadTool           = "yt-dlp"
	defaultDownloadTimeoutSeconds = 600
	defaultTempDir                = "~/.cache/relayscribe/artifacts"
	defaultInboxWorkers           = 2
	defaultInboxQueueSize         = 100
	defaultInboxSettleMS          = 500
	defaultServerURL              = "http://127.0.0.1:8090"
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

var defaultWorkerCommand = []string{"python3", "whisper_local.py"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:                   defaultBind,
			HeartbeatSeconds:       defaultHeartbeatSeconds,
			MaxUploadMB:            defaultMaxUploadMB,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Worker: Worker{
			Command:          append([]string(nil), defaultWorkerCommand...),
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Download: Download{
			Tool:           defaultDownloadTool,
			TimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Storage: Storage{
			TempDir:        defaultTempDir,
			InboxWorkers:   defaultInboxWorkers,
			InboxQueueSize: defaultInboxQueueSize,
			InboxSettleMS:  defaultInboxSettleMS,
		},
		Client: Client{
			ServerURL: defaultServerURL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
