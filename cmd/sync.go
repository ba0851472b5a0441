package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/bridge/internal/config"
	"github.com/danielolaszy/bridge/internal/engine"
	"github.com/danielolaszy/bridge/internal/logging"
)

// syncCmd executes a single scan-and-transfer pass and exits.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and exit",
	Long: `Run a single scan-and-transfer pass across all active project mappings.

Issues created on the cloud tracker that have a mapped issue type and no
successful transfer yet are created on the on-premise tracker. Outcomes are
written to the transfer log; failed transfers stay failed until retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		st, err := openStore(cfg, false)
		if err != nil {
			return err
		}

		eng := engine.New(st, engine.DefaultClientFactory,
			engine.WithFallbackSettings(cfg.Settings()),
		)

		logging.Info("starting sync run")
		if err := eng.RunOnce(); err != nil {
			return fmt.Errorf("sync run failed: %w", err)
		}

		stats, err := st.CountTransferLogs()
		if err != nil {
			return err
		}
		fmt.Printf("Sync complete: %d succeeded, %d failed, %d pending\n",
			stats.Success, stats.Failed, stats.Pending)

		return nil
	},
}
