package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"modwarden/internal/bot"
	"modwarden/internal/config"
	"modwarden/internal/health"
	"modwarden/internal/modules/audit"
	"modwarden/internal/publish"
	"modwarden/internal/storage"
	"modwarden/internal/sweeper"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and moderate until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("storage init failed", zap.Error(err))
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		return err
	}

	guilds, err := config.LoadGuildStore(cfg.GuildConfigPath)
	if err != nil {
		logger.Error("guild config load failed", zap.Error(err))
		return err
	}

	pipeline := audit.NewPipeline(store, logger)
	if cfg.MQTT.Enabled {
		publisher := publish.Connect(cfg.MQTT, logger)
		defer publisher.Close()
		pipeline.AddPublisher(publisher)
	}

	botSvc, err := bot.New(cfg, logger, store, guilds, pipeline)
	if err != nil {
		logger.Error("bot init failed", zap.Error(err))
		return err
	}
	if err := botSvc.Start(); err != nil {
		logger.Error("bot start failed", zap.Error(err))
		return err
	}
	logger.Info("bot started")

	sweep := sweeper.New(store, botSvc.Client(), pipeline,
		time.Duration(cfg.SweepIntervalSeconds)*time.Second, logger)

	var server *health.Server
	if cfg.Health.Enabled {
		server = health.NewServer(cfg.Health.Addr, cfg.Health.Service, botSvc, logger)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweep.Run(groupCtx) })
	group.Go(func() error { return botSvc.RunPresence(groupCtx) })
	if server != nil {
		group.Go(func() error {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			return server.Start()
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown failed", zap.Error(err))
			}
		}
		return botSvc.Close()
	})

	return group.Wait()
}
