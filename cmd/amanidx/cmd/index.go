package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

// indexOptions holds the flags shared by index and rebuild.
type indexOptions struct {
	plain   bool
	noColor bool
	rebuild bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a workspace for searching",
		Long: `Scan a workspace, chunk every indexable file, embed the chunks and store
them in the lexical and vector indexes.

Files excluded by configuration, .gitignore or the sensitive-file list are
skipped. Press Ctrl+C to cancel; files already processed stay searchable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the interactive view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.rebuild, "force", false, "Delete the existing index first")

	return cmd
}

func newRebuildCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "rebuild [path]",
		Short: "Delete and rebuild a workspace index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.rebuild = true
			return runIndex(cmd, args, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the interactive view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string, root *rootOptions, opts indexOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workspace, err := resolveRoot(args)
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithWorkspace(workspace),
	))

	a, err := openApp(workspace, root, renderer.Update)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !a.cfg.Indexing.Enabled {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Indexing is disabled (indexing.enabled is false).")
		return nil
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}

	start := time.Now()
	a.logger.Info("index_command_started",
		slog.String("workspace", workspace),
		slog.Bool("rebuild", opts.rebuild))

	if opts.rebuild {
		err = a.svc.Rebuild(ctx, workspace)
	} else {
		err = a.svc.BuildFullIndex(ctx, workspace)
	}

	renderer.Complete(ui.Summary{
		Status:   a.svc.Status(workspace),
		Duration: time.Since(start),
		Embedder: ui.EmbedderInfo{
			Model:      a.gateway.ActiveModel(),
			Dimensions: a.gateway.Dimensions(),
			Fallback:   a.gateway.Degraded(),
		},
		Err: err,
	})
	_ = renderer.Stop()

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("indexing cancelled")
	}
	return err
}

func newRefreshCmd(root *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "refresh <path>...",
		Short: "Re-index specific files",
		Long: `Re-index only the given files. Paths may be absolute or relative to the
workspace; files that no longer exist are removed from the index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := resolveRoot([]string{dir})
			if err != nil {
				return err
			}
			a, err := openApp(workspace, root, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.svc.RefreshPaths(cmd.Context(), workspace, args); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d paths\n", len(args))
			printStatusLine(cmd, a.svc.Status(workspace))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "C", "", "Workspace root (default: project root of the working directory)")

	return cmd
}

// printStatusLine writes a one-line summary used by commands that do not
// render full status.
func printStatusLine(cmd *cobra.Command, st index.IndexStatus) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d files, %d chunks\n",
		st.Workspace, st.State, st.IndexedFiles, st.TotalChunks)
}
