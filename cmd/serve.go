package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/bridge/internal/config"
	"github.com/danielolaszy/bridge/internal/engine"
	"github.com/danielolaszy/bridge/internal/logging"
	"github.com/danielolaszy/bridge/internal/server"
	"github.com/danielolaszy/bridge/internal/store"
)

// serveCmd runs the API server and the sync scheduler until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the sync scheduler",
	Long: `Run the bridge as a long-lived service.

The service exposes the mapping, sync, log and dashboard API under /api and
runs a background scheduler that executes a sync run on the configured
interval (default 15 minutes). Tracker credentials come from the environment
or from settings saved through the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inMemory, err := cmd.Flags().GetBool("in-memory")
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		st, err := openStore(cfg, inMemory)
		if err != nil {
			return err
		}

		interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
		if settings, err := st.GetSettings(); err == nil && settings.SyncIntervalMinutes > 0 {
			interval = time.Duration(settings.SyncIntervalMinutes) * time.Minute
		}

		eng := engine.New(st, engine.DefaultClientFactory,
			engine.WithInterval(interval),
			engine.WithFallbackSettings(cfg.Settings()),
		)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go eng.Start(ctx)

		srv := &http.Server{
			Addr:    cfg.HTTP.ListenAddr,
			Handler: server.New(st, eng).Router(),
		}

		go func() {
			logging.Info("api server listening", "addr", cfg.HTTP.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("api server failed", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		logging.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// openStore connects the MySQL store, or the in-memory store when asked
// for (trial runs without a database; state is lost on exit).
func openStore(cfg *config.Config, inMemory bool) (store.Store, error) {
	if inMemory {
		logging.Warn("using in-memory store, state will not survive a restart")
		return store.NewMemoryStore(), nil
	}

	if err := config.ValidateDatabaseConfig(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func init() {
	serveCmd.Flags().Bool("in-memory", false, "Keep all state in memory instead of MySQL")
}
