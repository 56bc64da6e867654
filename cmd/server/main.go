package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/keyword-alerts/internal/api"
	"github.com/Priya8975/keyword-alerts/internal/bot"
	"github.com/Priya8975/keyword-alerts/internal/config"
	"github.com/Priya8975/keyword-alerts/internal/engine"
	"github.com/Priya8975/keyword-alerts/internal/logger"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/telegram"
	ws "github.com/Priya8975/keyword-alerts/internal/websocket"
	"github.com/Priya8975/keyword-alerts/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseFile,
		store.WithBackupDir(cfg.BackupDir),
		store.WithSnapshotRetention(cfg.BackupRetention),
	)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database ready", "path", db.Path())

	for _, id := range cfg.AdminIDs {
		if _, err := db.AddAdmin(ctx, id); err != nil {
			return err
		}
	}

	m := metrics.New()

	hub := ws.NewHub(logger.WithComponent(log, "websocket"))
	go hub.Run(ctx)

	tg := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, logger.WithComponent(log, "telegram"))

	opts := []engine.Option{
		engine.WithMetrics(m),
		engine.WithEvents(hub),
		engine.WithConcurrency(cfg.DeliveryConcurrency),
	}
	if cfg.RedisURL != "" {
		rdb, err := engine.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, engine.WithGuard(engine.NewDeliveryGuard(rdb, logger.WithComponent(log, "guard"), engine.GuardConfig{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.BreakerCooldown,
			RateLimit:        cfg.GroupRateLimit,
			RateWindow:       cfg.GroupRateWindow,
		})))
		log.Info("per-group delivery guard enabled")
	}
	fanout := engine.NewFanOutEngine(db, tg, logger.WithComponent(log, "fanout"), opts...)

	monitor := worker.NewGroupMonitor(db, tg, cfg.PollInterval, logger.WithComponent(log, "monitor"), m, hub)
	monitor.Start(ctx)

	handler := bot.NewHandler(db, tg, monitor, bot.NewConversations(), logger.WithComponent(log, "bot"))

	router := api.NewRouter(api.Deps{
		Store:            db,
		Posts:            fanout,
		Updates:          handler,
		Groups:           monitor,
		Announcer:        tg,
		Hub:              hub,
		Metrics:          m,
		Logger:           log,
		AdminToken:       cfg.AdminToken,
		WebhookSecret:    cfg.WebhookSecret,
		BroadcastWorkers: cfg.BroadcastWorkers,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.WebhookURL != "" {
		if err := tg.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			log.Error("failed to register telegram webhook", "url", cfg.WebhookURL, "error", err)
		} else {
			log.Info("telegram webhook registered", "url", cfg.WebhookURL)
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}

	return shutdown(cfg, log, server, monitor, tg, db)
}

func shutdown(cfg *config.Config, log *slog.Logger, server *http.Server, monitor *worker.GroupMonitor, tg *telegram.Client, db *store.SQLiteStore) error {
	monitor.Stop(cfg.MonitorStopTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	if cfg.WebhookURL != "" {
		if err := tg.DeleteWebhook(ctx); err != nil {
			log.Warn("failed to remove telegram webhook", "error", err)
		}
	}

	if path, err := db.SnapshotBackup(ctx); err != nil {
		log.Error("final backup failed", "error", err)
	} else {
		log.Info("final backup written", "path", path)
	}

	log.Info("server stopped")
	return errors.Join(errs...)
}
