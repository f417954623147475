package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [path]",
		Short: "Delete a workspace index",
		Long: `Remove every stored trace of a workspace: lexical data, vectors and saved
state. Source files are never touched.`,
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

			if err := a.svc.DeleteIndex(cmd.Context(), workspace); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted index for %s\n", workspace)
			return nil
		},
	}
	return cmd
}
