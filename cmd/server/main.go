package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/loto-server/internal/config"
	"github.com/DoyleJ11/loto-server/internal/httpapi"
	"github.com/DoyleJ11/loto-server/internal/hub"
	"github.com/DoyleJ11/loto-server/internal/logging"
	"github.com/DoyleJ11/loto-server/internal/session"
	"github.com/DoyleJ11/loto-server/internal/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, reader, err := openStats(cfg, log)
	if err != nil {
		return err
	}

	h := hub.NewHub(ctx, hub.Config{
		Tracker:           session.NewTracker(),
		Stats:             recorder,
		Logger:            log,
		VerificationDelay: cfg.VerificationDelay,
		GracePeriod:       cfg.GracePeriod,
	})

	// Build the router *with* the hub injected
	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Stats:          reader,
			Logger:         log,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		h.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStats returns the no-op store when no database is configured.
func openStats(cfg config.Config, log *zap.Logger) (stats.Recorder, stats.Reader, error) {
	if cfg.DBDriver == "" {
		log.Info("stats disabled, no database configured")
		return stats.Nop{}, stats.Nop{}, nil
	}

	dsn := cfg.DatabaseURL
	if dsn == "" && cfg.DBDriver == config.DriverSQLite {
		dsn = "loto.db"
	}
	db, err := stats.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := stats.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate stats: %w", err)
	}

	log.Info("stats enabled", zap.String("driver", cfg.DBDriver))
	store := stats.NewStore(db)
	return store, store, nil
}
