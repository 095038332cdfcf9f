package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/merge"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newFileUpdateCmd())
	rootCmd.AddCommand(newFileAddCmd())
	rootCmd.AddCommand(newFileDeleteCmd())
	rootCmd.AddCommand(newFileRevertCmd())
	rootCmd.AddCommand(newFileDiffCmd())
	rootCmd.AddCommand(newFileMergeCmd())
	rootCmd.AddCommand(newFileResolveCmd())
}

func newFileUpdateCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:     "file-update FILE...",
		Aliases: []string{"fu"},
		Short:   "Send the given files of the current recipe to the kitchen",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe("")
			if err != nil {
				return err
			}
			rels, err := s.recipeRel(r, args)
			if err != nil {
				return err
			}

			done, err := s.syncer().UpdateFiles(cmd.Context(), r.Name, message, rels)
			for _, rel := range done {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", green.Render(rel))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Change message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newFileAddCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:     "file-add FILE",
		Aliases: []string{"fa"},
		Short:   "Add a new local file to the recipe in the kitchen",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe("")
			if err != nil {
				return err
			}
			rels, err := s.recipeRel(r, args)
			if err != nil {
				return err
			}

			if err := s.syncer().AddFile(cmd.Context(), r.Name, message, rels[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", green.Render(rels[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Change message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newFileDeleteCmd() *cobra.Command {
	var message string
	var yes bool

	cmd := &cobra.Command{
		Use:     "file-delete FILE...",
		Aliases: []string{"fd"},
		Short:   "Delete files from the recipe in the kitchen and locally",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe("")
			if err != nil {
				return err
			}
			rels, err := s.recipeRel(r, args)
			if err != nil {
				return err
			}

			if !yes {
				prompt := fmt.Sprintf("Delete %s from recipe %s in kitchen %s?", strings.Join(rels, ", "), r.Name, s.kitchen.Name)
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing deleted.")
					return nil
				}
			}

			done, err := s.syncer().DeleteFiles(cmd.Context(), r.Name, message, rels)
			for _, rel := range done {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", green.Render(rel))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Change message")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newFileRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file-revert FILE",
		Short: "Replace a local file with its version in the kitchen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe("")
			if err != nil {
				return err
			}
			rels, err := s.recipeRel(r, args)
			if err != nil {
				return err
			}

			if err := s.syncer().RevertFile(cmd.Context(), r.Name, rels[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s\n", green.Render(rels[0]))
			return nil
		},
	}
}

func newFileDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file-diff FILE",
		Short: "Open the diff tool on a local file and its version in the kitchen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe("")
			if err != nil {
				return err
			}
			rels, err := s.recipeRel(r, args)
			if err != nil {
				return err
			}

			argv, err := merge.DiffFile(cmd.Context(), s.sdk.Recipe, merge.NewTool(s.cfg.DiffTool), s.cfg.DiffDir, s.kitchen.Name, r, rels[0])
			if argv != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Executing command: %s\n", gray.Render(strings.Join(argv, " ")))
			}
			return err
		},
	}
}

func addKitchenPairFlags(cmd *cobra.Command, source, target *string) {
	cmd.Flags().StringVarP(source, "source-kitchen", "s", "", "Source (from) kitchen, defaults to the current kitchen")
	cmd.Flags().StringVarP(target, "target-kitchen", "t", "", "Target (to) kitchen")
	_ = cmd.MarkFlagRequired("target-kitchen")
}

func newFileMergeCmd() *cobra.Command {
	var source, target string

	cmd := &cobra.Command{
		Use:   "file-merge FILE",
		Short: "Open the merge tool on a file staged by kitchen-merge-preview",
		Args:  cobra.ExactArgs(1),
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

			argv, err := s.orchestrator().MergeFile(cmd.Context(), merge.NewTool(s.cfg.MergeTool), from, to, args[0])
			if argv != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Executing command: %s\n", gray.Render(strings.Join(argv, " ")))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "File merge done. Mark the file as resolved with 'dk file-resolve'.")
			return nil
		},
	}

	addKitchenPairFlags(cmd, &source, &target)
	return cmd
}

func newFileResolveCmd() *cobra.Command {
	var source, target string
	var fromBase bool

	cmd := &cobra.Command{
		Use:   "file-resolve FILE",
		Short: "Mark a file staged by kitchen-merge-preview as resolved",
		Long: "Mark a staged file as resolved. A .resolved file written by the merge tool is\n" +
			"kept; otherwise the .merge file becomes the resolution.",
		Args: cobra.ExactArgs(1),
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

			resolved, err := s.orchestrator().Resolve(from, to, args[0], fromBase)
			if err != nil {
				return errors.Wrap(err, "file resolve")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File resolve done: %s\n", green.Render(resolved))
			return nil
		},
	}

	addKitchenPairFlags(cmd, &source, &target)
	cmd.Flags().BoolVar(&fromBase, "from-base", false, "Resolve with the common ancestor version")
	return cmd
}
