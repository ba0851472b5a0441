package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/bridge/internal/config"
	"github.com/danielolaszy/bridge/internal/engine"
	"github.com/danielolaszy/bridge/internal/logging"
	"github.com/danielolaszy/bridge/internal/store"
)

// checkCmd probes both trackers with the environment configuration.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test connectivity to both trackers",
	Long: `Test reachability and credentials of the cloud and on-premise trackers.

Each side is probed independently with the settings from the environment, so
credentials can be verified before they are saved anywhere. A failure on one
side does not prevent the other side from being reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := config.ValidateCloudConfig(cfg); err != nil {
			return err
		}
		if err := config.ValidateOnPremConfig(cfg); err != nil {
			return err
		}

		logging.Info("testing tracker connections",
			"cloud_url", cfg.Cloud.URL,
			"onprem_url", cfg.OnPrem.URL,
			"cloud_token", logging.MaskSensitive(cfg.Cloud.APIToken))

		eng := engine.New(store.NewMemoryStore(), engine.DefaultClientFactory)
		result := eng.TestConnections(cfg.Settings())

		printSide("cloud", result.CloudOK, result.CloudError)
		printSide("on-premise", result.OnPremOK, result.OnPremError)

		if !result.CloudOK || !result.OnPremOK {
			return fmt.Errorf("connection test failed")
		}
		return nil
	},
}

func printSide(side string, ok bool, errText string) {
	if ok {
		fmt.Printf("%-11s OK\n", side)
		return
	}
	fmt.Printf("%-11s FAILED: %s\n", side, errText)
}
