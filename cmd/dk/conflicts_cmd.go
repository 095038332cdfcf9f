package main

import (
	"fmt"

	"github.com/datakitchen/dkcli/internal/client/merge"
	"github.com/datakitchen/dkcli/internal/recipe"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRecipeConflictsCmd())
	rootCmd.AddCommand(newConflictResolveCmd())
}

func newRecipeConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "recipe-conflicts",
		Aliases: []string{"rf"},
		Short:   "List unresolved conflicts of the current recipe or kitchen",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			docs, err := merge.LocalConflicts(s.kitchen, "", "", recipe.ConflictUnresolved)
			if err != nil {
				return err
			}
			// inside a recipe only its own conflicts are listed
			if r, err := s.kitchen.RecipeFor(s.cwd); err == nil {
				docs = map[string]recipe.ConflictDocument{r.Name: docs[r.Name]}
				if docs[r.Name].Len() == 0 {
					delete(docs, r.Name)
				}
			}

			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conflicts found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "There are unresolved conflicts")
			fmt.Fprint(cmd.OutOrStdout(), merge.FormatUnresolved(docs))
			return nil
		},
	}
}

func newConflictResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflict-resolve FILE",
		Short: "Mark a conflicted recipe file as resolved after fixing it",
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
			if err := recipe.NewConflictStore(r).MarkResolved(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conflict resolved: %s\n", green.Render(args[0]))
			return nil
		},
	}
}
