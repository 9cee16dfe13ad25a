package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idleforge/internal/catalog"
	"idleforge/internal/config"
	"idleforge/internal/game"
	"idleforge/internal/numeric"
	"idleforge/internal/save"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:          "idle-sim",
		Short:        "Advance a stored save slot while no server holds it",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := save.ValidateSlot(cfg.Slot); err != nil {
				return err
			}
			if !cfg.RunOnce && cfg.Every <= 0 {
				return fmt.Errorf("--every must be > 0")
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVar(&cfg.Slot, "slot", cfg.Slot, "save slot to advance")
	root.Flags().DurationVar(&cfg.RunFor, "run-for", cfg.RunFor, "extra simulated play time per pass, run tick by tick")
	root.Flags().BoolVar(&cfg.RunOnce, "once", cfg.RunOnce, "run a single pass and exit")
	root.Flags().DurationVar(&cfg.Every, "every", cfg.Every, "time between passes")

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.WorkerConfig) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cat, err := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
	}
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	store, closeStore, err := save.Open(ctx, save.OpenOptions{
		DatabaseURL: cfg.DatabaseURL,
		Schema:      cfg.SaveSchema,
		Dir:         cfg.SaveDir,
		MaxConns:    cfg.DBMaxConns,
	}, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.RunOnce {
		if err := pass(ctx, cat, store, cfg, logger); err != nil {
			return err
		}
		logger.Info("sim run-once completed", "slot", cfg.Slot)
		return nil
	}

	ticker := time.NewTicker(cfg.Every)
	defer ticker.Stop()

	logger.Info("sim started", "slot", cfg.Slot, "every", cfg.Every.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("sim shutdown")
			return nil
		case <-ticker.C:
			if err := pass(ctx, cat, store, cfg, logger); err != nil {
				logger.Error("sim pass failed", "slot", cfg.Slot, "err", err)
			}
		}
	}
}

// pass loads the slot into a fresh session, credits the time since it was
// saved plus any requested simulated time, and writes it back.
func pass(ctx context.Context, cat *catalog.Catalog, store save.Store, cfg config.WorkerConfig, logger *slog.Logger) error {
	session, err := game.NewSession(cat, game.Options{
		Step:       cfg.Tick,
		OfflineCap: cfg.OfflineCap,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	session.RegisterConditions(game.DefaultConditions())

	report, err := session.LoadFrom(ctx, store, cfg.Slot, time.Now())
	if err != nil {
		return err
	}
	ticks := 0
	if cfg.RunFor > 0 {
		ticks = session.Simulate(cfg.RunFor)
	}

	rev, err := session.SaveTo(ctx, store, cfg.Slot)
	if errors.Is(err, save.ErrConflict) {
		logger.Warn("slot changed during pass, skipped", "slot", cfg.Slot)
		return nil
	}
	if err != nil {
		return err
	}

	attrs := []any{"slot", cfg.Slot, "revision", rev, "offline", report.Applied.String(), "ticks", ticks}
	for id, gained := range report.Gains {
		attrs = append(attrs, "gained_"+id, numeric.Format(gained))
	}
	logger.Info("sim pass complete", attrs...)
	return nil
}
