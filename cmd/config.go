package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show where configuration and data are kept",
	Long: `Print the configuration directory and the effective data directory.

Settings are read from config.yaml in the configuration directory and can
be overridden with PMU_ environment variables (for example PMU_PORT).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config:  %s\n", filepath.Join(config.Dir(), "config.yaml"))
		fmt.Fprintf(out, "data:    %s\n", cfg.DataDir)
		fmt.Fprintf(out, "port:    %d\n", cfg.Port)
		fmt.Fprintf(out, "log:     %s\n", dataFile(cfg, logName))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
