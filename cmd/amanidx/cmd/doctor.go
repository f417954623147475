package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOutput, verbose bool

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check the environment before indexing",
		Long: `Verify that the workspace is readable, the data directory is writable and
has free space, the open-file limit suits 'watch', and the configured
embedding provider answers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := resolveRoot(args)
			if err != nil {
				return err
			}
			a, err := openApp(workspace, root, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), preflight.Target{
				Workspace: workspace,
				DataDir:   a.cfg.Storage.DataDir,
				Embedder:  a.gateway,
			})

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("critical checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")

	return cmd
}
