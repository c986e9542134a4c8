package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/summitlabs/summit-api/internal/checkin"
	"github.com/summitlabs/summit-api/internal/config"
	"github.com/summitlabs/summit-api/internal/httpapi"
	"github.com/summitlabs/summit-api/internal/notify"
	"github.com/summitlabs/summit-api/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg := loadedCfg

	if cfg.Auth.TokenSecret == "" {
		return errors.New("auth.token_secret must be set in the config file")
	}

	logger := buildLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	holder := config.NewHolder(cfg, flagConfigPath)
	hub := notify.NewHub()

	api := httpapi.NewServer(
		holder,
		checkin.NewReconciler(st, logger),
		checkin.NewFeed(st, cfg.Sync.DefaultPageSize, cfg.Sync.MaxPageSize, logger),
		hub,
		logger,
	)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeoutValue(),
		WriteTimeout: cfg.Server.WriteTimeoutValue(),
	}

	logger.Info("server starting",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.String("db", cfg.Database.Path),
		slog.String("version", version),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutValue())
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	// Live config reload: only the log level is retuned at runtime; listener
	// and storage settings need a restart.
	g.Go(func() error {
		return config.Watch(ctx, holder, logger, func(next *config.Config) {
			applyLogLevel(next)
		})
	})

	g.Go(func() error {
		return pruneLoop(ctx, st, holder, logger)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server stopped")

	return nil
}

// pruneLoop periodically deletes idempotency entries older than the
// retention window so the request log does not grow without bound.
func pruneLoop(ctx context.Context, st *store.Store, holder *config.Holder, logger *slog.Logger) error {
	ticker := time.NewTicker(holder.Config().Sync.PruneIntervalValue())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cfg := holder.Config()

			cutoff := time.Now().UTC().Add(-cfg.Sync.IdempotencyRetention())

			pruned, err := st.PruneRequestLog(ctx, cutoff)
			if err != nil {
				logger.Warn("idempotency prune failed", slog.String("error", err.Error()))

				continue
			}

			if pruned > 0 {
				logger.Info("idempotency entries pruned",
					slog.Int64("count", pruned),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}
