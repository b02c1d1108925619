package cli

import (
	"github.com/spf13/cobra"

	"github.com/gkobilansky/moment-meter/internal/config"
)

var (
	cfg    config.Config
	cfgErr error
	dbPath string
	logLvl string
	logFmt string
)

var rootCmd = &cobra.Command{
	Use:   "mm",
	Short: "moment-meter - effectiveness analytics for in-product moments",
	Long: `moment-meter measures how well in-product "moments" work.
It ingests interactions and outcomes, and reports effectiveness, funnels,
A/B comparisons, cohort retention and per-user journeys.

Running without a subcommand starts the server (same as 'mm serve').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Env problems only matter once a command actually runs
		return cfgErr
	},
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cfg, cfgErr = config.Load()
	if cfgErr != nil {
		cfg = config.Config{DBPath: "./moment-meter.db", Port: 8080, LogLevel: "info", LogFormat: "console"}
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")
	rootCmd.PersistentFlags().StringVar(&logLvl, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFmt, "log-format", cfg.LogFormat, "log format (console or json)")
}
