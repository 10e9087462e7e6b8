package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/control"
	"github.com/schaermu/sitesync/internal/output"
	"github.com/schaermu/sitesync/internal/sync"
	"github.com/spf13/cobra"
)

const killTimeout = 5 * time.Second

var (
	selectedColor = color.New(color.FgGreen, color.Bold)
	dimColor      = color.New(color.FgHiBlack)
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Upload the workspace to the selected site",
	Args:  cobra.NoArgs,
	RunE:  syncCommand(sync.Up, false),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Download the selected site into the workspace",
	Args:  cobra.NoArgs,
	RunE:  syncCommand(sync.Down, false),
}

var compareUpCmd = &cobra.Command{
	Use:   "compare-up",
	Short: "Show what an upload would transfer (dry run)",
	Args:  cobra.NoArgs,
	RunE:  syncCommand(sync.Up, true),
}

var compareDownCmd = &cobra.Command{
	Use:   "compare-down",
	Short: "Show what a download would transfer (dry run)",
	Args:  cobra.NoArgs,
	RunE:  syncCommand(sync.Down, true),
}

var pickUpCmd = &cobra.Command{
	Use:   "pick-up [site]",
	Short: "Upload the workspace to a site chosen for this run only",
	Args:  cobra.MaximumNArgs(1),
	RunE:  pickCommand(sync.Up),
}

var pickDownCmd = &cobra.Command{
	Use:   "pick-down [site]",
	Short: "Download a site chosen for this run only",
	Args:  cobra.MaximumNArgs(1),
	RunE:  pickCommand(sync.Down),
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill the sync running in the daemon",
	Long: `Kill terminates the sync currently run by "sitesync serve". A one-shot
sync started from a terminal is killed with Ctrl-C instead.`,
	Args: cobra.NoArgs,
	RunE: runKill,
}

var showOutputCmd = &cobra.Command{
	Use:   "show-output",
	Short: "Print the transfer output log",
	Args:  cobra.NoArgs,
	RunE:  runShowOutput,
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the configured sites",
	Args:  cobra.NoArgs,
	RunE:  runSites,
}

var selectCmd = &cobra.Command{
	Use:   "select [site]",
	Short: "Select the active site",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSelect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Clear the active site",
	Args:  cobra.NoArgs,
	RunE:  runDisconnect,
}

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Report a saved file (editor hook)",
	Long: `Save runs the on_file_save or on_file_save_individual upload for a file the
editor just saved. Nothing happens when both settings are off or a sync is
already running.`,
	Args: cobra.ExactArgs(1),
	RunE: eventCommand(true),
}

var openCmd = &cobra.Command{
	Use:   "open <file>",
	Short: "Report an opened file (editor hook)",
	Long: `Open downloads the file from the selected site first when
on_file_load_individual is set.`,
	Args: cobra.ExactArgs(1),
	RunE: eventCommand(false),
}

// daemonClient returns a client for a running daemon, or nil when none
// answers or --no-daemon is set.
func daemonClient(ctx context.Context, env *runtimeEnv) *control.Client {
	if noDaemon {
		return nil
	}
	c, err := control.NewClient(env.cfg.Serve)
	if err != nil {
		env.logger.Debug("control client unavailable", "error", err)
		return nil
	}
	if !c.Probe(ctx) {
		return nil
	}
	return c
}

func remoteOutcome(resp *control.TriggerResponse) error {
	if resp == nil || resp.Outcome == nil {
		return nil
	}
	switch resp.Outcome.State {
	case sync.StateSucceeded.String():
		return nil
	case sync.StateKilled.String():
		return sync.ErrKilled
	default:
		return errors.New(resp.Outcome.Error)
	}
}

// killer returns the signal callback of a command: it kills the daemon's
// sync when the command is delegated to c, the local session otherwise.
func killer(env *runtimeEnv, c *control.Client) func() {
	if c == nil {
		return func() { env.app.Kill() }
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
		defer cancel()

		killed, err := c.Kill(ctx)
		if err != nil {
			env.logger.Warn("failed to kill daemon sync", "error", err)
			return
		}
		env.logger.Debug("daemon sync kill requested", "was_running", killed)
	}
}

// delegate runs a trigger in the daemon. A request cut short by a signal
// means the daemon's sync was killed.
func delegate(ctx context.Context, call func(context.Context) (*control.TriggerResponse, error)) error {
	resp, err := call(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return sync.ErrKilled
		}
		return err
	}
	return remoteOutcome(resp)
}

func syncCommand(dir sync.Direction, dryRun bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		env, err := newRuntime(logger, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		c := daemonClient(context.Background(), env)
		ctx, cancel := setupSignalHandler(killer(env, c))
		defer cancel()

		if c != nil {
			logger.Debug("delegating to daemon", "direction", dir, "dry_run", dryRun)
			return delegate(ctx, func(ctx context.Context) (*control.TriggerResponse, error) {
				return c.Sync(ctx, dir, dryRun)
			})
		}

		out, err := env.app.Run(ctx, sync.Request{Direction: dir, DryRun: dryRun, Trigger: sync.TriggerCommand})
		if err != nil {
			return err
		}
		return outcomeError(out)
	}
}

func pickCommand(dir sync.Direction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		env, err := newRuntime(logger, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		key, err := chooseSite(env.cfg, args, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}

		ctx, cancel := setupSignalHandler(func() { env.app.Kill() })
		defer cancel()

		out, err := env.app.SyncSite(ctx, key, dir)
		if err != nil {
			return err
		}
		return outcomeError(out)
	}
}

func eventCommand(save bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := setupLogger()

		env, err := newRuntime(logger, os.Stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		c := daemonClient(context.Background(), env)
		ctx, cancel := setupSignalHandler(killer(env, c))
		defer cancel()

		if c != nil {
			if save {
				return delegate(ctx, func(ctx context.Context) (*control.TriggerResponse, error) {
					return c.Save(ctx, path)
				})
			}
			return delegate(ctx, func(ctx context.Context) (*control.TriggerResponse, error) {
				return c.Open(ctx, path)
			})
		}

		var done <-chan sync.Outcome
		if save {
			done, err = env.app.OnSave(ctx, path)
		} else {
			done, err = env.app.OnOpen(ctx, path)
		}
		if err != nil || done == nil {
			return err
		}
		return outcomeError(<-done)
	}
}

func runKill(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	c, err := control.NewClient(cfg.Serve)
	if err != nil {
		return err
	}

	killed, err := c.Kill(cmd.Context())
	if control.Unavailable(err) {
		return fmt.Errorf("no daemon listening on %s", cfg.Serve.ListenAddr)
	}
	if err != nil {
		return err
	}

	if killed {
		fmt.Println("sync killed")
	} else {
		fmt.Println("no sync running")
	}
	return nil
}

func runShowOutput(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return output.ShowLog(cfg.OutputLogPath(), cmd.OutOrStdout(), tailLines)
}

func runSites(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	env, err := newRuntime(logger, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	sites := env.app.Sites()
	if len(sites) == 0 {
		return sync.ErrNoSitesConfigured
	}

	current := env.app.Current()
	w := cmd.OutOrStdout()
	for _, s := range sites {
		marker := "  "
		if s == current {
			marker = selectedColor.Sprint("* ")
		}
		_, _ = fmt.Fprintf(w, "%s%s %s\n", marker, config.DisplayName(s), dimColor.Sprint(describeSite(s)))
	}
	return nil
}

func describeSite(s *config.Site) string {
	desc := s.LocalPath + " <-> " + s.RemotePath
	switch {
	case s.IsUpOnly():
		desc += " (up only)"
	case s.IsDownOnly():
		desc += " (down only)"
	}
	return desc
}

func runSelect(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	env, err := newRuntime(logger, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	key, err := chooseSite(env.cfg, args, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	s, err := env.app.Select(key)
	if err != nil {
		return err
	}

	if c := daemonClient(cmd.Context(), env); c != nil {
		if _, err := c.Select(cmd.Context(), key); err != nil {
			logger.Warn("failed to update daemon selection", "error", err)
		}
	}

	fmt.Printf("selected %s\n", config.DisplayName(s))
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	env, err := newRuntime(logger, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.app.Deselect(); err != nil {
		return err
	}

	if c := daemonClient(cmd.Context(), env); c != nil {
		if _, err := c.Deselect(cmd.Context()); err != nil {
			logger.Warn("failed to update daemon selection", "error", err)
		}
	}

	fmt.Println("no site selected")
	return nil
}
