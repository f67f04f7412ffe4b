// Package cmd wires the aiwriter CLI command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wmsyw/aiWriter-sub000/internal/config"
	"github.com/wmsyw/aiWriter-sub000/internal/observability"
)

type buildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = buildInfo{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	applyVersion()
}

func applyVersion() {
	rootCmd.Version = versionInfo.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("aiwriter %s (commit %s, built %s)\n",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate))
}

var (
	flagLogLevel   string
	flagLogJSON    bool
	flagBackendURL string

	// loadedConfig is resolved once in the persistent pre-run and
	// shared by all subcommands.
	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "aiwriter",
	Short: "Track asynchronous authoring jobs from the terminal",
	Long: `aiwriter submits and tracks asynchronous jobs on an AI novel-authoring
backend: chapter generation, branch regeneration, review scoring, and the
consistency and extraction checks that follow a generation.

Job status is reconciled from two channels, a push stream and polling, so
a completed job is acted on exactly once no matter which channel reports
it first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("log-level") || flagLogLevel != "" {
			overrides["logging"] = map[string]any{"level": flagLogLevel, "json": flagLogJSON}
		}
		if flagBackendURL != "" {
			overrides["backend"] = map[string]any{"url": flagBackendURL}
		}

		cfg, err := config.Load(cmd.Context(), overrides)
		if err != nil {
			return err
		}
		loadedConfig = cfg

		observability.InitCLILogger(cfg.Logging.Level, cfg.Logging.JSON)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		observability.Sync()
	},
}

func init() {
	applyVersion()

	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend", "", "Backend base URL (overrides config)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
