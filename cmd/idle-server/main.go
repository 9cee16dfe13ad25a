package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idleforge/internal/api"
	"idleforge/internal/catalog"
	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/save"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := save.ValidateSlot(cfg.Slot); err != nil {
		slog.Error("invalid IDLE_SAVE_SLOT", "slot", cfg.Slot, "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := save.Open(ctx, save.OpenOptions{
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.SaveSchema,
		Dir:         cfg.SaveDir,
		MaxConns:    cfg.DBMaxConns,
	}, logger)
	if err != nil {
		logger.Error("save store open failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	session, err := game.NewSession(cat, game.Options{
		Step:       cfg.Tick,
		OfflineCap: cfg.OfflineCap,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("session init failed", "err", err)
		os.Exit(1)
	}
	session.RegisterConditions(game.DefaultConditions())

	report, err := session.LoadFrom(ctx, store, cfg.Slot, time.Now())
	if err != nil {
		logger.Error("load save failed", "slot", cfg.Slot, "err", err)
		os.Exit(1)
	}
	if report.Applied > 0 {
		logger.Info("welcome back", "away", report.Elapsed.String(), "credited", report.Applied.String())
	}

	if cfg.AutoStart {
		session.StartScheduler()
	}
	go session.Run(ctx, cfg.PumpEvery)
	go session.Autosave(ctx, store, cfg.Slot, cfg.AutosaveEvery)

	server := api.New(cfg, logger, session, store)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	saved := make(chan struct{})
	go func() {
		defer close(saved)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if _, err := session.SaveTo(shutdownCtx, store, cfg.Slot); err != nil {
			logger.Error("final save failed", "slot", cfg.Slot, "err", err)
			return
		}
		logger.Info("final save complete", "slot", cfg.Slot)
	}()

	logger.Info("idle server listening", "addr", cfg.Addr, "slot", cfg.Slot, "tick", cfg.Tick.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-saved
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
