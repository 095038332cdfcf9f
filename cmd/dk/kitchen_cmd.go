package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/sync"
	"github.com/datakitchen/dkcli/internal/kitchen"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newKitchenGetCmd())
	rootCmd.AddCommand(newKitchenMergePreviewCmd())
	rootCmd.AddCommand(newKitchenMergeCmd())
}

func newKitchenGetCmd() *cobra.Command {
	var recipes []string

	cmd := &cobra.Command{
		Use:     "kitchen-get KITCHEN",
		Aliases: []string{"kg"},
		Short:   "Create a local working directory for a kitchen",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.kitchen != nil {
				return errors.Newf("already inside kitchen %s at %s", s.kitchen.Name, s.kitchen.Root)
			}

			k, err := kitchen.Create(s.cwd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kitchen %s created in %s\n", cyan.Render(k.Name), k.Root)

			syncer := sync.NewSyncer(k, s.sdk.Recipe)
			for _, name := range recipes {
				sum, err := syncer.Pull(cmd.Context(), name, sync.PullPolicy{})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), sum.String())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&recipes, "recipe", "r", nil, "Recipes to get into the new kitchen")
	return cmd
}

// checkLocalKitchens makes sure the local copies of the given kitchens, when
// they sit next to the current kitchen, match the remote ones.
func checkLocalKitchens(ctx context.Context, out io.Writer, s *session, names ...string) error {
	if !s.cfg.CheckWorkingPath {
		return nil
	}
	if s.kitchen == nil {
		fmt.Fprintln(out, gray.Render("Not in a kitchen, skipping the local sync check."))
		return nil
	}

	parent := filepath.Dir(s.kitchen.Root)
	for _, name := range names {
		dir := filepath.Join(parent, name)
		if !kitchen.IsRoot(dir) {
			fmt.Fprintf(out, "%s\n", gray.Render(fmt.Sprintf("No local copy of kitchen %s, skipping its sync check.", name)))
			continue
		}
		k, err := kitchen.Open(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Checking that local kitchen %s is in sync with remote...\n", cyan.Render(name))
		if err := sync.NewSyncer(k, s.sdk.Recipe).CheckInSync(ctx); err != nil {
			return err
		}
	}
	return nil
}

func newKitchenMergePreviewCmd() *cobra.Command {
	var source, target string
	var clean bool

	cmd := &cobra.Command{
		Use:     "kitchen-merge-preview",
		Aliases: []string{"kmp"},
		Short:   "Preview the merge of two kitchens and stage conflicted files",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()

			from, to, err := s.kitchenPair(source, target)
			if err != nil {
				return err
			}
			if err := checkLocalKitchens(cmd.Context(), cmd.OutOrStdout(), s, from, to); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Previewing merge of kitchen %s into kitchen %s\n", cyan.Render(from), cyan.Render(to))
			res, err := s.orchestrator().Preview(cmd.Context(), from, to, clean)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.String())
			if n := res.Conflicts(); n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d conflicted files staged in %s\n", n, res.Dir)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\nKitchen merge preview done.")
			return nil
		},
	}

	addKitchenPairFlags(cmd, &source, &target)
	cmd.Flags().BoolVar(&clean, "clean", false, "Drop the files staged by a previous preview")
	return cmd
}

func newKitchenMergeCmd() *cobra.Command {
	var source, target string
	var yes bool

	cmd := &cobra.Command{
		Use:     "kitchen-merge",
		Aliases: []string{"km"},
		Short:   "Merge the source kitchen into the target kitchen",
		Long: "Merge two kitchens on the server. Files staged by kitchen-merge-preview must all be\n" +
			"resolved with file-resolve first; they are sent together in one merge.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.Close()

			from, to, err := s.kitchenPair(source, target)
			if err != nil {
				return err
			}
			if err := checkLocalKitchens(cmd.Context(), cmd.OutOrStdout(), s, from, to); err != nil {
				return err
			}

			if !yes {
				prompt := fmt.Sprintf("Merge the remote kitchen %s into the remote kitchen %s?", from, to)
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
					fmt.Fprintln(cmd.OutOrStdout(), "Merge cancelled.")
					return nil
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Merging kitchen %s into kitchen %s\n", cyan.Render(from), cyan.Render(to))
			out, err := s.orchestrator().Commit(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out.Report)
			return nil
		},
	}

	addKitchenPairFlags(cmd, &source, &target)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
