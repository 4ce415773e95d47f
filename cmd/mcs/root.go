// -----------------------------------------------------------------------
// Last Modified: Friday, 31st July 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/common"
)

// configPaths is a custom flag type allowing multiple --config flags,
// later files overriding earlier ones (matches common.LoadFromFiles).
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Type() string   { return "stringArray" }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	flagPort    int
	flagHost    string

	// Global state, resolved once in rootCmd's PersistentPreRunE and
	// shared by every subcommand.
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "mcs",
	Short: "Metrics Calculation Service",
	Long:  `mcs runs and drives the Metrics Calculation Service: batch metrics submission, scheduling, and promotion to a warehouse.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		if len(configFiles) == 0 {
			if _, err := os.Stat("mcs.toml"); err == nil {
				configFiles = append(configFiles, "mcs.toml")
			} else if _, err := os.Stat("deployments/local/mcs.toml"); err == nil {
				configFiles = append(configFiles, "deployments/local/mcs.toml")
			}
		}

		var err error
		config, err = common.LoadFromFiles(configFiles...)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		common.ApplyFlagOverrides(config, flagPort, flagHost)

		logger = common.SetupLogger(config)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().VarP(&configFiles, "config", "c", "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
