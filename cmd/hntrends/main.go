package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aparm539/nwHacks2026/internal/config"
	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/extract"
	"github.com/aparm539/nwHacks2026/internal/hn"
	"github.com/aparm539/nwHacks2026/internal/keywords"
	"github.com/aparm539/nwHacks2026/internal/oracle"
	"github.com/aparm539/nwHacks2026/internal/pipeline"
	"github.com/aparm539/nwHacks2026/internal/scheduler"
	"github.com/aparm539/nwHacks2026/internal/server"
	"github.com/aparm539/nwHacks2026/internal/syncer"
	"github.com/aparm539/nwHacks2026/internal/trends"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hntrends",
	Short:   "Hacker News ingestion and keyword trends",
	Long:    "hntrends mirrors the Hacker News item feed into SQLite and tracks trending keywords day by day.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(moversCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(blacklistCmd)
	rootCmd.AddCommand(variantsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("hntrends", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/hntrends/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your keyword service and tune sync sizes.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, sync and keyword service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n\n", database.GetToday())
		fmt.Println("Items:")
		fmt.Printf("  Total stored: %d (max id %d)\n", stats.TotalItems, stats.MaxItemID)
		fmt.Printf("  Stories: %d\n", stats.Stories)
		fmt.Printf("  Comments: %d\n", stats.Comments)
		fmt.Printf("  Users: %d\n", stats.Users)
		fmt.Printf("  Days with items: %d\n", stats.DaysWithItems)

		report, err := a.sync.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("\nSync:")
		fmt.Printf("  Runs: %d\n", stats.SyncRuns)
		switch {
		case report.Active != nil:
			printRun("  Active", report.Active)
		case report.Latest != nil:
			printRun("  Latest", report.Latest)
		default:
			fmt.Println("  No runs yet. Start one with: hntrends sync")
		}

		fmt.Println("\nKeywords:")
		fmt.Printf("  Days extracted: %d\n", stats.DaysExtracted)
		fmt.Printf("  Tracked keywords: %d\n", stats.TrackedKeywords)
		fmt.Printf("  Variants: %d, blacklist rules: %d\n", stats.Variants, stats.BlacklistRules)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := a.scorer.Health(ctx); err != nil {
			fmt.Printf("  Keyword service: unavailable (%v)\n", err)
		} else {
			fmt.Printf("  Keyword service: ok (%s)\n", cfg.Keywords.OracleURL)
		}
		return nil
	},
}

// --- run command ---

var (
	dryRun      bool
	runForce    bool
	skipSync    bool
	skipExtract bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: sync -> extract",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		opts := a.pipelineOptions()
		opts.Force = runForce
		opts.SkipSync = skipSync
		opts.SkipExtract = skipExtract

		var result *pipeline.Result
		if dryRun {
			result = a.pipeline.DryRun(opts)
		} else {
			result = a.pipeline.Run(ctx, opts)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'hntrends trends' to see today's keywords.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Re-extract keywords for every stored day")
	runCmd.Flags().BoolVar(&skipSync, "skip-sync", false, "Only extract keywords")
	runCmd.Flags().BoolVar(&skipExtract, "skip-extract", false, "Only sync items")
}

// --- serve command ---

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		if serveSchedule || cfg.Schedule.Enabled {
			sched := scheduler.New(a.pipeline, cfg.Schedule.Interval(), a.pipelineOptions())
			go sched.Run(ctx)
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, a.deps(), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Run the pipeline on the configured interval")
}

// app wires the services for one command invocation.
type app struct {
	db        *database.DB
	sync      *syncer.Manager
	scorer    *oracle.Client
	cache     *keywords.OverrideCache
	extractor *extract.Extractor
	trends    *trends.Service
	overrides *keywords.Overrides
	pipeline  *pipeline.Pipeline
}

func openApp() (*app, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}

	feed := hn.NewClient(hn.Options{
		BaseURL:           cfg.Feed.BaseURL,
		Timeout:           time.Duration(cfg.Feed.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.Feed.RequestsPerSecond,
		UserAgent:         cfg.Feed.UserAgent,
	})
	manager := syncer.NewManager(db, feed, syncer.Options{
		ChunkSize:     cfg.Sync.ChunkSize,
		Concurrency:   cfg.Sync.Concurrency,
		BootstrapDays: cfg.Sync.BootstrapDays,
		SafetyMargin:  cfg.Sync.SafetyMargin,
	})

	kw := cfg.Keywords
	scorer := oracle.NewClient(kw.OracleURL, time.Duration(kw.TimeoutSeconds)*time.Second)
	cache := keywords.NewOverrideCache(keywords.DBLoader(db, kw.Blacklist), kw.CacheTTL(), nil)
	extractor := extract.New(db, scorer, cache, extract.Options{
		MaxKeywords:    kw.MaxKeywords,
		NGramMax:       kw.NGramMax,
		Language:       kw.Language,
		DedupThreshold: kw.DedupThreshold,
		TopN:           kw.TopN,
		MaxTextChars:   kw.MaxTextChars,
	})

	return &app{
		db:        db,
		sync:      manager,
		scorer:    scorer,
		cache:     cache,
		extractor: extractor,
		trends:    trends.NewService(db),
		overrides: keywords.NewOverridesService(db, cache),
		pipeline:  pipeline.New(db, manager, extractor),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) deps() server.Deps {
	return server.Deps{
		DB:        a.db,
		Sync:      a.sync,
		Extractor: a.extractor,
		Trends:    a.trends,
		Overrides: a.overrides,
	}
}

func (a *app) pipelineOptions() pipeline.Options {
	return pipeline.Options{Budget: cfg.Sync.Budget()}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "hntrends.db")
	return database.Open(dbPath)
}

// signalContext is cancelled on Ctrl+C so long runs stop between chunks.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
