package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep a workspace index up to date",
		Long: `Watch a workspace for file changes and re-index changed files after a
quiet period (indexing.debounce_ms). The workspace is indexed first when it
has no usable index. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, args, root, quiet)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print each change")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string, root *rootOptions, quiet bool) error {
	workspace, err := resolveRoot(args)
	if err != nil {
		return err
	}
	a, err := openApp(workspace, root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !a.cfg.Indexing.Enabled {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Indexing is disabled (indexing.enabled is false).")
		return nil
	}

	if !a.svc.Status(workspace).State.Queryable() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Building initial index...")
		if err := a.svc.BuildFullIndex(ctx, workspace); err != nil {
			return err
		}
	}
	printStatusLine(cmd, a.svc.Status(workspace))

	scan, err := scanner.New()
	if err != nil {
		return err
	}
	w, err := watcher.New(scan, a.scanOptions(), a.logger)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", workspace)
	for ev := range w.Events() {
		if !quiet {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", ev.Operation, ev.URI)
		}
		if ev.Operation == watcher.OpIgnoreChange {
			scan.InvalidateIgnoreCache()
		}
		a.svc.Notify(workspace, []watcher.FileEvent{ev})
	}

	err = <-runErr
	if dropped := w.Dropped(); dropped > 0 {
		a.logger.Warn("watch_events_dropped", slog.Uint64("count", dropped))
	}
	if errors.Is(err, context.Canceled) {
		printStatusLine(cmd, a.svc.Status(workspace))
		return nil
	}
	return err
}
