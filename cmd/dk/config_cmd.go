package main

import (
	"fmt"

	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigSetCmd())
	rootCmd.AddCommand(newConfigShowCmd())
	rootCmd.AddCommand(newConfigPathCmd())
}

func newConfigSetCmd() *cobra.Command {
	var serverURL, token, mergeTool, diffTool, mergeDir, diffDir string
	var checkWorkingPath bool

	cmd := &cobra.Command{
		Use:   "config-set",
		Short: "Change settings in the dk config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			for name, dst := range map[string]*string{
				"server":     &cfg.ServerURL,
				"token":      &cfg.Token,
				"merge-tool": &cfg.MergeTool,
				"diff-tool":  &cfg.DiffTool,
				"merge-dir":  &cfg.MergeDir,
				"diff-dir":   &cfg.DiffDir,
			} {
				if flags.Changed(name) {
					*dst, _ = flags.GetString(name)
				}
			}
			if flags.Changed("check-working-path") {
				cfg.CheckWorkingPath = checkWorkingPath
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", cyan.Render(cfg.Path))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL")
	cmd.Flags().StringVar(&token, "token", "", "API token")
	cmd.Flags().StringVar(&mergeTool, "merge-tool", "", "Merge tool command with {{left}} {{base}} {{right}} {{merge}}")
	cmd.Flags().StringVar(&diffTool, "diff-tool", "", "Diff tool command with {{local}} {{remote}}")
	cmd.Flags().StringVar(&mergeDir, "merge-dir", "", "Directory for kitchen merge working sets")
	cmd.Flags().StringVar(&diffDir, "diff-dir", "", "Directory for file-diff copies")
	cmd.Flags().BoolVar(&checkWorkingPath, "check-working-path", true, "Check local kitchens are in sync before a merge")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			row := func(key, value string) {
				fmt.Fprintf(out, "%s%s\n", gray.Render(fmt.Sprintf("%-20s", key)), value)
			}
			row("Config", cfg.Path)
			row("Server", cfg.ServerURL)
			row("Token", utils.MaskSecret(cfg.Token))
			row("Merge tool", cfg.MergeTool)
			row("Diff tool", cfg.DiffTool)
			row("Merge dir", cfg.MergeDir)
			row("Diff dir", cfg.DiffDir)
			row("Check working path", fmt.Sprint(cfg.CheckWorkingPath))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(cmd))
			return err
		},
	}
}
