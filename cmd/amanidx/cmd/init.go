package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/configs"
	"github.com/Aman-CERP/amanidx/internal/config"
)

func newInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration template",
		Long: `Write a commented .amanidx.yaml into the workspace root. With --user,
write the machine-wide template to ~/.config/amanidx/config.yaml instead.
Existing files are kept unless --force is given.`,
		Example: `  amanidx init
  amanidx init --user
  amanidx init ./service --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, template := "", configs.ProjectConfigTemplate
			if user {
				path, template = config.GetUserConfigPath(), configs.UserConfigTemplate
			} else {
				workspace, err := resolveRoot(args)
				if err != nil {
					return err
				}
				path = filepath.Join(workspace, config.ProjectConfigFile)
			}

			written, err := writeTemplate(path, template, force)
			if err != nil {
				return err
			}
			if !written {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s already exists (use --force to overwrite)\n", path)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user-level template")

	return cmd
}

// writeTemplate writes content to path unless it exists and force is off.
func writeTemplate(path, content string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
