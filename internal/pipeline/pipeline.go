package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/extract"
	"github.com/aparm539/nwHacks2026/internal/syncer"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Err     error  `json:"-"`
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult `json:"steps"`
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Syncer is the part of the sync manager the pipeline drives.
type Syncer interface {
	StartOrResume(ctx context.Context) (*syncer.StartResult, error)
	Drive(ctx context.Context, runID int64, budget time.Duration) (*syncer.DriveResult, error)
}

// Extractor runs daily keyword extraction.
type Extractor interface {
	Run(ctx context.Context, opts extract.RunOptions) (*extract.Result, error)
}

// Options selects what a run does.
type Options struct {
	SkipSync    bool
	SkipExtract bool
	Force       bool
	// Budget bounds the sync step; zero means run until the sync run is done.
	Budget time.Duration
}

// Pipeline orchestrates the 2-step ingest and keyword pipeline.
type Pipeline struct {
	db        *database.DB
	syncer    Syncer
	extractor Extractor
}

// New creates a new pipeline.
func New(db *database.DB, s Syncer, e Extractor) *Pipeline {
	return &Pipeline{db: db, syncer: s, extractor: e}
}

// Run executes sync then extraction. A failed sync does not stop extraction
// over what is already stored.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}

	// Step 1: Sync
	if !opts.SkipSync {
		r.Steps = append(r.Steps, p.runSync(ctx, opts.Budget))
	}
	if ctx.Err() != nil {
		return r
	}

	// Step 2: Extract keywords
	if !opts.SkipExtract {
		r.Steps = append(r.Steps, p.runExtract(ctx, opts.Force))
	}
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(opts Options) *Result {
	r := &Result{}

	if !opts.SkipSync {
		active, _ := p.db.GetActiveRun()
		localMax, _ := p.db.MaxItemID()
		var summary string
		switch {
		case active != nil:
			summary = fmt.Sprintf("[dry-run] Would resume run %d at item %d (%d%% complete)",
				active.ID, active.LastFetchedItem, active.Progress())
		case localMax == 0:
			summary = "[dry-run] Would start a bootstrap run over the configured window"
		default:
			summary = fmt.Sprintf("[dry-run] Would start a catch-up run from item %d", localMax)
		}
		r.Steps = append(r.Steps, StepResult{Name: "Sync", Summary: summary})
	}

	if !opts.SkipExtract {
		dates, _ := p.db.GetItemDates()
		processed, _ := p.db.GetProcessedDates()
		pending := 0
		for _, d := range dates {
			if opts.Force || !processed[d] {
				pending++
			}
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Extract",
			Summary: fmt.Sprintf("[dry-run] %d day(s) with items need keywords, plus today", pending),
		})
	}

	return r
}

func (p *Pipeline) runSync(ctx context.Context, budget time.Duration) StepResult {
	log.Println("Step 1/2: Syncing items...")
	start, err := p.syncer.StartOrResume(ctx)
	if err != nil {
		return StepResult{Name: "Sync", Err: err}
	}
	res, err := p.syncer.Drive(ctx, start.Run.ID, budget)
	if err != nil {
		return StepResult{Name: "Sync", Err: err}
	}

	state := "in progress"
	switch {
	case res.Done:
		state = "completed"
	case res.OutOfTime:
		state = "out of time, will resume"
	case res.Paused:
		state = "paused"
	case res.Run != nil:
		state = string(res.Run.Status)
	}
	progress := 0
	if res.Run != nil {
		progress = res.Run.Progress
	}
	return StepResult{
		Name: "Sync",
		Summary: fmt.Sprintf("Run %d: %d chunks, %d new items, %d%% (%s)",
			start.Run.ID, res.Chunks, res.Inserted, progress, state),
	}
}

func (p *Pipeline) runExtract(ctx context.Context, force bool) StepResult {
	log.Println("Step 2/2: Extracting keywords...")
	res, err := p.extractor.Run(ctx, extract.RunOptions{Force: force})
	if err != nil {
		return StepResult{Name: "Extract", Err: err}
	}
	return StepResult{
		Name:    "Extract",
		Summary: fmt.Sprintf("Processed %d day(s), %d skipped, %d failed", res.Processed, res.Skipped, res.Failed),
	}
}
