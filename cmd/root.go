package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/engramhq/engramd/internal/config"
)

var (
	configFlag   string
	logLevelFlag string

	logLevel = new(slog.LevelVar)
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engramd",
		Short: "Long-term memory for AI agents over MCP",
		Long: `engramd stores, searches and maintains agent memories, backed by a
local SQLite record store and a pluggable vector index.

Running engramd with no arguments starts the MCP server on stdio.
Point an MCP client at the binary and it gets the full memory toolset:
add, search, get, list, update, delete and history.

Examples:
  engramd                         # serve MCP on stdio
  engramd memory add -u alice "prefers green tea"
  engramd memory search -u alice "tea"
  engramd config show             # effective config, secrets masked
  engramd doctor                  # environment checks`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.engramd/config.json)")
	cmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(memoryCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}

// initLogging routes all logs to stderr. Stdout belongs to the MCP
// protocol when serving, so nothing else may write there.
func initLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	if logLevelFlag != "" {
		setLogLevel(logLevelFlag)
	}
}

// setLogLevel applies a named level. The --log-level flag wins over the
// config file, which wins over the "info" default.
func setLogLevel(level string) {
	switch level {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
}

// resolveConfigPath returns the config file path: flag first, then the
// ENGRAMD_CONFIG environment variable, then the conventional location.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if env := os.Getenv("ENGRAMD_CONFIG"); env != "" {
		return env
	}
	return config.DefaultPath()
}
