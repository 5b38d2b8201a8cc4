package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/artifact"
	"github.com/bosley/relayscribe/config"
	"github.com/bosley/relayscribe/scribe"
	"github.com/bosley/relayscribe/worker"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if ctx.configSeen {
				logger.Info("loaded config", "path", ctx.configPath)
			} else {
				logger.Info("config file not found, using defaults", "path", ctx.configPath)
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address, overriding server.bind")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := artifact.Open(cfg.Storage.TempDir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	acquirer := acquire.New(acquire.Config{
		DownloadTool:       cfg.Download.Tool,
		DownloadTimeout:    cfg.DownloadTimeout(),
		MaxDurationSeconds: cfg.Download.MaxDurationSeconds,
		MaxBytes:           cfg.Download.MaxBytes,
	}, logger)

	supervisor, err := worker.New(worker.Config{
		Command:   cfg.Worker.Command,
		Env:       cfg.Worker.Env,
		Timeout:   cfg.WorkerTimeout(),
		KillGrace: cfg.WorkerKillGrace(),
	}, logger)
	if err != nil {
		return fmt.Errorf("configure worker: %w", err)
	}

	srv, err := scribe.New(scribe.Config{
		Addr:            cfg.Server.Bind,
		CertFile:        cfg.Server.CertFile,
		KeyFile:         cfg.Server.KeyFile,
		Heartbeat:       cfg.HeartbeatInterval(),
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		InboxDir:        cfg.Storage.InboxDir,
		InboxWorkers:    cfg.Storage.InboxWorkers,
		InboxQueueSize:  cfg.Storage.InboxQueueSize,
		InboxSettle:     cfg.InboxSettle(),
	}, store, acquirer, supervisor, logger)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
