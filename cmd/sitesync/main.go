package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/sitesync/internal/app"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/notify"
	"github.com/schaermu/sitesync/internal/output"
	"github.com/schaermu/sitesync/internal/runner"
	"github.com/schaermu/sitesync/internal/site"
	"github.com/schaermu/sitesync/internal/status"
	"github.com/schaermu/sitesync/internal/sync"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	logLevel   string
	logFormat  string
	showOutput bool
	noDaemon   bool

	// show-output flags
	tailLines int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitesync",
	Short: "Synchronize a local workspace with remote sites using rsync",
	Long: `sitesync uploads and downloads a local workspace to and from remote "sites"
by driving rsync, running configurable hook commands before and after each
transfer.

Commands can be run one-shot from a terminal or an editor task, or handled by
a long-running daemon (sitesync serve) that also watches the workspace and
accepts save and open events from editors.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitesync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/sitesync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&showOutput, "show-output", false, "stream transfer output to the terminal")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "run in this process even when a daemon is running")

	showOutputCmd.Flags().IntVarP(&tailLines, "tail", "n", 0, "only print the last n lines")

	rootCmd.AddCommand(upCmd, downCmd, compareUpCmd, compareDownCmd)
	rootCmd.AddCommand(pickUpCmd, pickDownCmd)
	rootCmd.AddCommand(killCmd, showOutputCmd)
	rootCmd.AddCommand(sitesCmd, selectCmd, disconnectCmd)
	rootCmd.AddCommand(saveCmd, openCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout carries transfer output, logs go to stderr
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath(), nil
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	logger.Debug("loading configuration", "path", path)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"workspace", cfg.Workspace,
		"state_dir", cfg.StateDir,
		"sites", len(cfg.Sites))

	return cfg, nil
}

// setupSignalHandler cancels the returned context on SIGINT or SIGTERM after
// calling onSignal, which may be nil.
func setupSignalHandler(onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runtimeEnv is the set of components one invocation works with.
type runtimeEnv struct {
	logger *slog.Logger
	cfg    *config.Config
	app    *app.App
	output *output.Channel
}

func (e *runtimeEnv) Close() {
	if err := e.output.Close(); err != nil {
		e.logger.Warn("failed to close output log", "error", err)
	}
}

// newRuntime loads the configuration and wires the session, the presenter
// and the persisted selection.
func newRuntime(logger *slog.Logger, messages io.Writer) (*runtimeEnv, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	ch, err := output.Open(cfg.OutputLogPath(), os.Stdout)
	if err != nil {
		return nil, err
	}
	if showOutput {
		ch.Show()
	}

	provider := config.NewProvider(cfg)
	presenter := status.NewPresenter(logger, status.NewIndicator(messages), ch, notify.NewClient(), provider.Current, messages)
	session := sync.NewSession(runner.New(logger), ch, presenter, logger)
	a := app.New(logger, provider, site.NewSelector(), site.NewStore(cfg.StateFilePath()), session)

	if err := a.Restore(); err != nil {
		logger.Warn("failed to restore site selection", "error", err)
	}

	return &runtimeEnv{logger: logger, cfg: cfg, app: a, output: ch}, nil
}

// outcomeError converts a terminal outcome into the command's error.
func outcomeError(out sync.Outcome) error {
	switch out.State {
	case sync.StateSucceeded:
		return nil
	case sync.StateKilled:
		return sync.ErrKilled
	default:
		return out.Err
	}
}
