package main

import (
	"fmt"
	"time"

	"dealfeed/internal/container"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func prefsCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect and change a user's category preferences",
	}
	cmd.PersistentFlags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkPersistentFlagRequired("user")

	withApp := func(run func(cmd *cobra.Command, app *container.Container, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()
			return run(cmd, app, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print stored preferences",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *container.Container, _ []string) error {
			prefs, err := app.Preferences.GetPreferences(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(prefs)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <category-id>...",
		Short: "Replace the selected categories",
		RunE: withApp(func(cmd *cobra.Command, app *container.Container, args []string) error {
			for _, id := range args {
				if _, ok := app.Taxonomy.FindCategoryByID(id); !ok {
					log.Warnf("⚠️ Category %s is not in taxonomy %s, it will be ignored", id, app.Taxonomy.Version())
				}
			}
			if err := app.Preferences.SetCategories(cmd.Context(), userID, args); err != nil {
				return err
			}
			fmt.Printf("Saved %d categories for %s (%v)\n", len(args), userID, app.Selector.Resolve(args))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "onboard",
		Short: "Mark onboarding as finished",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *container.Container, _ []string) error {
			return app.Preferences.CompleteOnboarding(cmd.Context(), userID)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "visit",
		Short: "Record a visit and print the streak",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *container.Container, _ []string) error {
			streak, err := app.Preferences.UpdateStreak(cmd.Context(), userID, time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("🔥 %d day streak\n", streak)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear categories and onboarding, keeping the streak",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, app *container.Container, _ []string) error {
			return app.Preferences.Reset(cmd.Context(), userID)
		}),
	})

	return cmd
}
