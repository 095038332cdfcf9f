package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRecipeStatusCmd())
	rootCmd.AddCommand(newRecipeGetCmd())
	rootCmd.AddCommand(newRecipeUpdateCmd())
}

func newRecipeStatusCmd() *cobra.Command {
	var recipeName string
	var watch bool

	cmd := &cobra.Command{
		Use:     "recipe-status",
		Aliases: []string{"rs"},
		Short:   "Compare the local recipe with the remote kitchen",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.recipe(recipeName)
			if err != nil {
				return err
			}
			syncer := s.syncer()

			printStatus := func(ctx context.Context) {
				report, err := syncer.Status(ctx, r.Name)
				if err != nil {
					printError(cmd.ErrOrStderr(), err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s - Status of recipe %s in kitchen %s\n",
					time.Now().Format(time.DateTime), cyan.Render(r.Name), cyan.Render(s.kitchen.Name))
				fmt.Fprint(cmd.OutOrStdout(), report.String())
			}

			if !watch {
				report, err := syncer.Status(cmd.Context(), r.Name)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.String())
				return nil
			}

			printStatus(cmd.Context())
			watcher := sync.NewStatusWatcher(r.Root(), printStatus)
			if err := watcher.Start(cmd.Context()); err != nil {
				return errors.Wrap(err, "watch recipe")
			}
			defer watcher.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), gray.Render("Watching for changes, Ctrl+C to stop"))
			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&recipeName, "recipe", "r", "", "Recipe name, defaults to the current recipe")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print the status again whenever local files change")
	return cmd
}

func newRecipeGetCmd() *cobra.Command {
	var force bool
	var deleteLocal bool

	cmd := &cobra.Command{
		Use:     "recipe-get [RECIPE]",
		Aliases: []string{"rg"},
		Short:   "Get the latest version of a recipe from the kitchen",
		Long: "Get a recipe into the current kitchen, or bring an existing working copy up to date.\n" +
			"Remote changes are merged into local edits; files that cannot be merged are left\n" +
			"untouched and recorded as conflicts.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.Close()

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			r, err := s.recipe(name)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Getting recipe %s from kitchen %s\n", cyan.Render(r.Name), cyan.Render(s.kitchen.Name))
			sum, err := s.syncer().Pull(cmd.Context(), r.Name, sync.PullPolicy{
				OverwriteLocal: force,
				DeleteOrphans:  deleteLocal,
			})
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), sum.String())
			if len(sum.Failed) > 0 {
				return errors.Newf("%d files could not be updated", len(sum.Failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite local changes with the remote version")
	cmd.Flags().BoolVar(&deleteLocal, "delete-local", false, "Delete local files and folders that are not in the remote recipe")
	return cmd
}

func newRecipeUpdateCmd() *cobra.Command {
	var message string
	var deleteRemote bool

	cmd := &cobra.Command{
		Use:     "recipe-update",
		Aliases: []string{"ru"},
		Short:   "Send all local changes of the current recipe to the kitchen",
		Args:    cobra.NoArgs,
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

			sum, err := s.syncer().Push(cmd.Context(), r.Name, message, sync.PushPolicy{DeleteRemote: deleteRemote})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sum.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Change message")
	cmd.Flags().BoolVar(&deleteRemote, "delete-remote", false, "Delete remote files that are missing locally")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
