// Package cmd provides the CLI commands for amanidx.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/profiling"
	"github.com/Aman-CERP/amanidx/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	debug   bool
	profile profiling.Options
	session *profiling.Session
}

// NewRootCmd creates the root command for the amanidx CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanidx",
		Short: "Hybrid code search index for local workspaces",
		Long: `amanidx keeps a per-workspace index of source files and documents
and answers queries by merging BM25 keyword hits with embedding similarity.

Run 'amanidx index' in a project to build the index, then
'amanidx search <query>' to query it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.profile.Enabled() {
				return nil
			}
			session, err := profiling.Start(opts.profile)
			if err != nil {
				return fmt.Errorf("failed to start profiling: %w", err)
			}
			opts.session = session
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if opts.session == nil {
				return nil
			}
			defer func() { opts.session = nil }()
			return opts.session.Stop()
		},
	}
	cmd.SetVersionTemplate("amanidx version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log at debug level")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newRebuildCmd(opts))
	cmd.AddCommand(newRefreshCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
