package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/ui"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOutput, noColor bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index health and status",
		Long: `Display the state of a workspace index: lifecycle state, file and chunk
counts, last indexing time, storage size and the embedding model in use.`,
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

			info := collectStatus(cmd, a)
			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

func collectStatus(cmd *cobra.Command, a *app) ui.StatusInfo {
	// Status opens an existing index, so it must run before Diagnostics.
	st := a.svc.Status(a.root)
	diag := a.svc.Diagnostics(cmd.Context())

	info := ui.StatusInfo{
		Status:            st,
		Backend:           diag.Backend,
		ActiveModel:       a.gateway.ActiveModel(),
		EmbeddingDegraded: a.gateway.Degraded(),
	}
	for i := range diag.Workspaces {
		if diag.Workspaces[i].Workspace == st.Workspace {
			info.Diagnostics = &diag.Workspaces[i]
			break
		}
	}

	dbPath := filepath.Join(index.WorkspaceDir(a.cfg.Storage.DataDir, st.Workspace), store.FileName)
	for _, path := range []string{dbPath, dbPath + "-wal"} {
		if fi, err := os.Stat(path); err == nil {
			info.DatabaseSize += fi.Size()
		}
	}
	return info
}
