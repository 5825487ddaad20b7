package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aparm539/nwHacks2026/internal/syncer"
)

var syncBudget time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Start or resume a sync run and process chunks",
	Long: "Starts a new sync run (bootstrap or catch-up) or resumes the running or paused one,\n" +
		"then processes chunks until the run completes, the budget elapses or Ctrl+C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		start, err := a.sync.StartOrResume(ctx)
		if err != nil {
			return err
		}
		if start.Resumed {
			fmt.Printf("Resuming run %d at item %d (%d%%)\n", start.Run.ID, start.Run.LastFetchedItem, start.Run.Progress)
		} else {
			fmt.Printf("Started run %d: items %d down to %d\n", start.Run.ID, start.Run.StartMaxItem, start.Run.TargetEndItem)
		}

		budget := cfg.Sync.Budget()
		if cmd.Flags().Changed("budget") {
			budget = syncBudget
		}
		res, err := a.sync.Drive(ctx, start.Run.ID, budget)
		if err != nil {
			// The cursor only moves on commit, so the run resumes where it stopped.
			return fmt.Errorf("sync run %d: %w", start.Run.ID, err)
		}

		fmt.Printf("\nProcessed %d chunk(s), %d new item(s)\n", res.Chunks, res.Inserted)
		printRun("Run", res.Run)
		switch {
		case res.Done:
			fmt.Println("Sync complete.")
		case res.OutOfTime:
			fmt.Println("Budget used up; run 'hntrends sync' again to continue.")
		case res.Paused:
			fmt.Println("Run paused; run 'hntrends sync' again to resume.")
		default:
			fmt.Println("Stopped; run 'hntrends sync' again to resume.")
		}
		return nil
	},
}

var syncPauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a running sync run (defaults to the active run)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var id int64
		if len(args) == 1 {
			id, err = strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %s", args[0])
			}
		} else {
			report, err := a.sync.Status(cmd.Context())
			if err != nil {
				return err
			}
			if report.Active == nil {
				fmt.Println("No active run.")
				return nil
			}
			id = report.Active.ID
		}

		res, err := a.sync.Pause(cmd.Context(), id)
		if errors.Is(err, syncer.ErrRunNotFound) {
			return fmt.Errorf("run %d not found", id)
		}
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

var syncAbandonCmd = &cobra.Command{
	Use:   "abandon [id]",
	Short: "Mark a running or paused sync run as failed so a new one can start",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run ID: %s", args[0])
		}
		if err := a.sync.Fail(cmd.Context(), id, errors.New("abandoned by operator")); err != nil {
			return err
		}
		run, err := a.sync.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		printRun("Run", run)
		return nil
	},
}

var syncHistoryLimit int

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.sync.History(cmd.Context(), syncHistoryLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs yet.")
			return nil
		}
		for i := range runs {
			printRun(fmt.Sprintf("[%d]", runs[i].ID), &runs[i])
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncBudget, "budget", 0, "Stop starting new chunks after this long (0 = until done)")
	syncHistoryCmd.Flags().IntVarP(&syncHistoryLimit, "limit", "n", 20, "Number of runs to show")

	syncCmd.AddCommand(syncPauseCmd)
	syncCmd.AddCommand(syncHistoryCmd)
	syncCmd.AddCommand(syncAbandonCmd)
}

func printRun(label string, r *syncer.RunView) {
	if r == nil {
		return
	}
	fmt.Printf("%s: run %d %s, %d%% (%d/%d items, cursor %d)\n",
		label, r.ID, r.Status, r.Progress, r.ItemsFetched, r.TotalItems, r.LastFetchedItem)
	if r.ErrorMessage != nil {
		fmt.Printf("    error: %s\n", *r.ErrorMessage)
	}
}
