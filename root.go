package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/alipan-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// cfgHolder holds the effective configuration loaded by PersistentPreRunE.
// It is set for every subcommand once the root pre-run phase completes.
var cfgHolder *config.Holder

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alipan-go",
		Short:   "Alipan cloud drive client",
		Long:    "Browse, read and write the backup and resource drives of an Alipan account, from the command line or through a local HTTP server.",
		Version: version,
		// Errors and usage are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log informational messages")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log debug messages, including HTTP traffic")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors and suppress status output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.MarkFlagsMutuallyExclusive("debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newDrivesCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves defaults, the config file, the environment and CLI
// flags into cfgHolder.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	// Only serve has --listen, and only an explicit value overrides the file.
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		listen := f.Value.String()
		cli.Listen = &listen
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgHolder = config.NewHolder(cfg, path)

	return nil
}

// logLevel derives the level from the config, then the CLI flags, which
// always win.
func logLevel(cfg *config.Config) slog.Level {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return level
}

// newLogHandler picks the text or JSON handler. "auto" is text on a
// terminal and JSON otherwise.
func newLogHandler(w io.Writer, format string, level slog.Level, terminal bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format != "text" && !terminal) {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// buildLogger creates the logger for the current command from the loaded
// config and the CLI flags.
func buildLogger() *slog.Logger {
	var cfg *config.Config
	if cfgHolder != nil {
		cfg = cfgHolder.Config()
	}

	format := "auto"
	if cfg != nil && cfg.Logging.LogFormat != "" {
		format = cfg.Logging.LogFormat
	}

	terminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	return slog.New(newLogHandler(os.Stderr, format, logLevel(cfg), terminal))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
