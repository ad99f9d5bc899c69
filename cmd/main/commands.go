package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"dealfeed/internal/container"
	"dealfeed/internal/domain"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Queue deal digests for onboarded users and process them until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.Info("Starting deal digest workers...")

			app, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()

			if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, cmd.Context().Err()) {
				return fmt.Errorf("application exited with error: %w", err)
			}

			log.Info("Application finished successfully")
			return nil
		},
	}
}

func dealsCmd() *cobra.Command {
	var (
		userID  string
		pages   int
		asJSON  bool
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Rank today's deals for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()

			ranking, state, err := app.Service.DailyDeals(cmd.Context(), userID, pages)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(struct {
					Filtered bool           `json:"filtered"`
					Query    string         `json:"query"`
					Ranking  domain.Ranking `json:"ranking"`
				}{domain.IsFiltered(state), state.SearchQuery(), ranking})
			}

			fmt.Printf("Showing %v\n", state)
			printDeals(ranking.Top, ranking.Others, maxRows)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().IntVar(&pages, "pages", 0, "catalog pages to load (default from digest.pages)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the ranking as JSON")
	cmd.Flags().IntVar(&maxRows, "limit", 20, "deals to print besides the top one")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func latestCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the last stored digest for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()

			snapshot, err := app.Service.LatestSnapshot(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if snapshot == nil {
				fmt.Printf("No digest stored for %s yet\n", userID)
				return nil
			}
			return writeJSON(snapshot)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func categoriesCmd() *cobra.Command {
	var level int

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories at one taxonomy level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builder, err := container.NewQueryBuilder(cfg)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("level") {
				level = cfg.Taxonomy.SelectionLevel
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBREADCRUMB")
			for _, c := range builder.Store().LevelCategories(level) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.FullName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&level, "level", 1, "taxonomy level (0 lists verticals)")

	return cmd
}

func verticalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verticals",
		Short: "List taxonomy verticals with their root category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builder, err := container.NewQueryBuilder(cfg)
			if err != nil {
				return err
			}
			store := builder.Store()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERTICAL\tROOT\tCATEGORIES")
			for _, name := range store.Verticals() {
				root, _ := store.VerticalRootID(name)
				fmt.Fprintf(w, "%s\t%s\t%d\n", name, root, len(store.VerticalCategoryIDs(name)))
			}
			return w.Flush()
		},
	}
}

func queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <category-id>...",
		Short: "Print the catalog search query a category selection produces",
		RunE: func(cmd *cobra.Command, args []string) error {
			builder, err := container.NewQueryBuilder(cfg)
			if err != nil {
				return err
			}

			query := builder.BuildSelectionQuery(args)
			if query == "" {
				fmt.Println("(no filter, popular products)")
				return nil
			}
			fmt.Println(query)
			return nil
		},
	}
}

func printDeals(top *domain.Deal, others []domain.Deal, maxRows int) {
	if top == nil {
		fmt.Println("No deals right now. Check back later.")
		return
	}

	fmt.Printf("\n⭐ %s\n", dealLine(*top))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, d := range others {
		if maxRows > 0 && i >= maxRows {
			fmt.Fprintf(w, "…\t%d more\n", len(others)-i)
			break
		}
		fmt.Fprintf(w, "%d%%\t%s\t%s %s\n", d.DiscountPercentage, d.Title,
			d.PriceAmount().StringFixed(2), d.Price.CurrencyCode)
	}
	_ = w.Flush()
}

func dealLine(d domain.Deal) string {
	parts := []string{fmt.Sprintf("%d%% off", d.DiscountPercentage), d.Title}
	if d.Vendor != "" {
		parts = append(parts, "by "+d.Vendor)
	}
	parts = append(parts, fmt.Sprintf("now %s %s (save %s)",
		d.PriceAmount().StringFixed(2), d.Price.CurrencyCode, d.SavingsAmount.StringFixed(2)))
	return strings.Join(parts, " ")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
