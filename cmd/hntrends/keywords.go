package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/extract"
	"github.com/aparm539/nwHacks2026/internal/keywords"
	"github.com/aparm539/nwHacks2026/internal/trends"
)

// --- extract command ---

var (
	extractForce bool
	extractDate  string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract keywords for unprocessed days and today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		res, err := a.extractor.Run(ctx, extract.RunOptions{Force: extractForce, Date: extractDate})
		if err != nil {
			return err
		}

		for _, d := range res.Days {
			switch d.Status {
			case extract.StatusOK:
				fmt.Printf("  %s  %-10s %3d keywords from %d items\n", d.Date, d.Mode, d.Keywords, d.Items)
			case extract.StatusSkipped:
				fmt.Printf("  %s  skipped (no text)\n", d.Date)
			default:
				fmt.Printf("  %s  failed: %s\n", d.Date, d.Error)
			}
		}
		fmt.Printf("\nProcessed %d day(s), %d skipped, %d failed\n", res.Processed, res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "Reprocess every stored day")
	extractCmd.Flags().StringVar(&extractDate, "date", "", "Process a single day (YYYY-MM-DD)")
}

// --- trends and movers ---

var trendsDate string

var trendIcons = map[string]string{
	trends.TrendUp:     "^",
	trends.TrendDown:   "v",
	trends.TrendStable: "=",
	trends.TrendNew:    "*",
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show a day's keyword ranking with day-over-day movement",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		daily, err := a.trends.Daily(cmd.Context(), trendsDate)
		if err != nil {
			return err
		}
		if len(daily.Keywords) == 0 {
			fmt.Println("No keywords yet. Run: hntrends extract")
			return nil
		}

		fmt.Printf("Keywords for %s", database.FormatDateDisplay(daily.Date))
		if daily.PreviousDate != "" {
			fmt.Printf(" (vs %s)", database.FormatDateDisplay(daily.PreviousDate))
		}
		fmt.Println()
		for _, k := range daily.Keywords {
			change := ""
			if k.PreviousRank != nil && k.RankChange != 0 {
				change = fmt.Sprintf("%+d", k.RankChange)
			}
			fmt.Printf("  %3d. %s %-40s %s\n", k.Rank, trendIcons[k.Trend], k.Keyword, change)
		}
		return nil
	},
}

var (
	moversDays  int
	moversLimit int
)

var moversCmd = &cobra.Command{
	Use:   "movers",
	Short: "Show the biggest keyword movers over recent days",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.trends.Weekly(cmd.Context(), moversDays, moversLimit)
		if err != nil {
			return err
		}
		if m.Days == 0 {
			fmt.Println("No keywords yet. Run: hntrends extract")
			return nil
		}

		fmt.Printf("Movers %s to %s (%d days with data)\n", m.StartDate, m.EndDate, m.Days)
		printMovers("Gainers", m.Gainers)
		printMovers("Losers", m.Losers)
		printMovers("New", m.New)
		return nil
	},
}

func init() {
	trendsCmd.Flags().StringVar(&trendsDate, "date", "", "Day to show (default: latest)")
	moversCmd.Flags().IntVar(&moversDays, "days", 7, "Number of processed days in the window")
	moversCmd.Flags().IntVarP(&moversLimit, "limit", "n", 10, "Entries per list")
}

func printMovers(title string, list []trends.Mover) {
	fmt.Printf("\n%s:\n", title)
	if len(list) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, mv := range list {
		if mv.IsNew {
			fmt.Printf("  %-40s now #%d\n", mv.Keyword, mv.CurrentRank)
			continue
		}
		fmt.Printf("  %-40s #%d -> #%d (%+d)\n", mv.Keyword, *mv.StartRank, mv.CurrentRank, mv.WeeklyChange)
	}
}

// --- blacklist command ---

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage blocked keyword stems",
}

var blacklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blacklist overrides and the effective blocked stems",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := a.overrides.ListBlacklist(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Overrides:")
		if len(view.Overrides) == 0 {
			fmt.Println("  (none)")
		}
		for _, o := range view.Overrides {
			fmt.Printf("  %-6s %s\n", o.Action, o.Stem)
		}
		fmt.Printf("\nEffective blacklist (%d stems):\n", len(view.Effective))
		for _, s := range view.Effective {
			fmt.Printf("  %s\n", s)
		}
		return nil
	},
}

func blacklistActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [stem]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.overrides.SetBlacklist(cmd.Context(), args[0], action); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", action, args[0])
			return nil
		},
	}
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove [stem]",
	Short: "Remove an override, restoring the default for the stem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.overrides.RemoveBlacklist(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no override for %q", args[0])
		}
		fmt.Printf("Removed override: %s\n", args[0])
		return nil
	},
}

func init() {
	blacklistCmd.AddCommand(blacklistListCmd)
	blacklistCmd.AddCommand(blacklistActionCmd(database.ActionBlock, "Block a stem"))
	blacklistCmd.AddCommand(blacklistActionCmd(database.ActionAllow, "Allow a stem blocked by default"))
	blacklistCmd.AddCommand(blacklistRemoveCmd)
}

// --- variants command ---

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Manage manual keyword groupings",
}

var variantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List variant mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		variants, err := a.overrides.ListVariants(cmd.Context())
		if err != nil {
			return err
		}
		if len(variants) == 0 {
			fmt.Println("No variants defined. Add one with: hntrends variants add [variant] [parent]")
			return nil
		}
		for _, v := range variants {
			fmt.Printf("  %s (%s) -> %s (%s)\n", v.VariantKeyword, v.VariantStem, v.ParentKeyword, v.ParentStem)
		}
		return nil
	},
}

var variantStem, parentStem string

var variantsAddCmd = &cobra.Command{
	Use:   "add [variant] [parent]",
	Short: "Group a variant keyword under a parent keyword",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := a.overrides.AddVariant(cmd.Context(), keywords.VariantInput{
			VariantKeyword: args[0],
			VariantStem:    variantStem,
			ParentKeyword:  args[1],
			ParentStem:     parentStem,
		})
		switch {
		case errors.Is(err, database.ErrVariantNesting):
			return fmt.Errorf("%q or %q is already part of another grouping: %w", args[0], args[1], err)
		case err != nil:
			return err
		}
		fmt.Printf("Added variant: %s -> %s\n", v.VariantKeyword, v.ParentKeyword)
		return nil
	},
}

var variantsRemoveCmd = &cobra.Command{
	Use:   "remove [variant-stem]",
	Short: "Remove a variant mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.overrides.RemoveVariant(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no variant mapped for %q", args[0])
		}
		fmt.Printf("Removed variant: %s\n", args[0])
		return nil
	},
}

func init() {
	variantsAddCmd.Flags().StringVar(&variantStem, "variant-stem", "", "Stem to match (default: the variant keyword)")
	variantsAddCmd.Flags().StringVar(&parentStem, "parent-stem", "", "Parent stem (default: the parent keyword)")

	variantsCmd.AddCommand(variantsListCmd)
	variantsCmd.AddCommand(variantsAddCmd)
	variantsCmd.AddCommand(variantsRemoveCmd)
}
