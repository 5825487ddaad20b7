package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/hn"
)

// ErrRunNotFound is returned for operations on an unknown run ID.
var ErrRunNotFound = errors.New("sync run not found")

// Feed is the subset of the feed client the sync engine depends on.
type Feed interface {
	ItemFetcher
	FetchMaxItem(ctx context.Context) (int64, error)
	FetchItems(ctx context.Context, ids []int64, concurrency int) []*hn.Item
	FetchUsers(ctx context.Context, ids []string, concurrency int) map[string]*hn.User
}

// Options tunes chunk sizing and the first-run bootstrap window.
type Options struct {
	ChunkSize     int
	Concurrency   int
	BootstrapDays int
	SafetyMargin  int64
}

// Manager owns the lifecycle of sync runs. All run state lives in the database.
type Manager struct {
	db   *database.DB
	feed Feed
	opts Options
	now  func() time.Time
}

// NewManager creates a sync run manager.
func NewManager(db *database.DB, feed Feed, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 20
	}
	if opts.BootstrapDays <= 0 {
		opts.BootstrapDays = 7
	}
	return &Manager{db: db, feed: feed, opts: opts, now: time.Now}
}

// RunView is a sync run with its progress recomputed from persisted counters.
type RunView struct {
	database.SyncRun
	Progress int `json:"progress"`
}

func view(r *database.SyncRun) *RunView {
	if r == nil {
		return nil
	}
	return &RunView{SyncRun: *r, Progress: r.Progress()}
}

// StartResult is the outcome of StartOrResume.
type StartResult struct {
	Run     *RunView `json:"run"`
	Resumed bool     `json:"resumed"`
}

// StartOrResume resumes the running or paused run, or creates a new one walking
// from the current high-water mark down to the bootstrap boundary (empty store)
// or the highest locally stored item.
func (m *Manager) StartOrResume(ctx context.Context) (*StartResult, error) {
	active, err := m.db.GetActiveRun()
	if err != nil {
		return nil, fmt.Errorf("loading active run: %w", err)
	}
	if active != nil {
		return m.resume(active)
	}

	maxID, err := m.feed.FetchMaxItem(ctx)
	if err != nil {
		return nil, err
	}
	localMax, err := m.db.MaxItemID()
	if err != nil {
		return nil, fmt.Errorf("reading local max item: %w", err)
	}

	target := localMax
	if localMax == 0 {
		boundary := m.now().AddDate(0, 0, -m.opts.BootstrapDays).Unix()
		target = FindIDAtOrBefore(ctx, m.feed, boundary, maxID, 1, m.opts.SafetyMargin)
		log.Printf("Bootstrap boundary %s located at item %d", time.Unix(boundary, 0).UTC().Format(time.RFC3339), target)
	}
	if target > maxID {
		target = maxID
	}

	run, err := m.db.CreateRun(maxID, target)
	if errors.Is(err, database.ErrActiveRunExists) {
		// Lost a race with another starter; resume theirs.
		active, err := m.db.GetActiveRun()
		if err != nil {
			return nil, fmt.Errorf("loading active run: %w", err)
		}
		if active == nil {
			return nil, database.ErrActiveRunExists
		}
		return m.resume(active)
	}
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}

	log.Printf("Started sync run %d: items %d down to %d (%d items)",
		run.ID, run.StartMaxItem, run.TargetEndItem, run.TotalItems)
	return &StartResult{Run: view(run)}, nil
}

func (m *Manager) resume(run *database.SyncRun) (*StartResult, error) {
	if run.Status == database.RunStatusPaused {
		if _, err := m.db.TransitionRun(run.ID, database.RunStatusRunning, nil, database.RunStatusPaused); err != nil {
			return nil, fmt.Errorf("resuming run %d: %w", run.ID, err)
		}
		fresh, err := m.db.GetRun(run.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading run %d: %w", run.ID, err)
		}
		if fresh != nil {
			run = fresh
		}
	}
	log.Printf("Resuming sync run %d at item %d", run.ID, run.LastFetchedItem)
	return &StartResult{Run: view(run), Resumed: true}, nil
}

// PauseResult reports whether a pause request changed anything.
type PauseResult struct {
	Run     *RunView `json:"run"`
	Changed bool     `json:"changed"`
	Message string   `json:"message"`
}

// Pause moves a running run to paused. Pausing a run in any other state is a no-op.
func (m *Manager) Pause(ctx context.Context, runID int64) (*PauseResult, error) {
	changed, err := m.db.TransitionRun(runID, database.RunStatusPaused, nil, database.RunStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("pausing run %d: %w", runID, err)
	}
	run, err := m.db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", runID, err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}

	res := &PauseResult{Run: view(run), Changed: changed}
	if changed {
		res.Message = fmt.Sprintf("run %d paused at item %d", run.ID, run.LastFetchedItem)
	} else {
		res.Message = fmt.Sprintf("run %d is %s; nothing to pause", run.ID, run.Status)
	}
	return res, nil
}

// Fail marks a running or paused run as failed with the given cause.
func (m *Manager) Fail(ctx context.Context, runID int64, cause error) error {
	msg := cause.Error()
	changed, err := m.db.TransitionRun(runID, database.RunStatusFailed, &msg,
		database.RunStatusRunning, database.RunStatusPaused)
	if err != nil {
		return fmt.Errorf("failing run %d: %w", runID, err)
	}
	if !changed {
		run, err := m.db.GetRun(runID)
		if err != nil {
			return err
		}
		if run == nil {
			return ErrRunNotFound
		}
	}
	return nil
}

// StatusReport describes the active run, if any, and the most recent run.
type StatusReport struct {
	Active *RunView `json:"active,omitempty"`
	Latest *RunView `json:"latest,omitempty"`
}

// Status reports the active and most recent runs.
func (m *Manager) Status(ctx context.Context) (*StatusReport, error) {
	active, err := m.db.GetActiveRun()
	if err != nil {
		return nil, fmt.Errorf("loading active run: %w", err)
	}
	recent, err := m.db.ListRuns(1)
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}

	report := &StatusReport{Active: view(active)}
	if len(recent) > 0 {
		report.Latest = view(&recent[0])
	}
	return report, nil
}

// Get returns a single run.
func (m *Manager) Get(ctx context.Context, runID int64) (*RunView, error) {
	run, err := m.db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", runID, err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return view(run), nil
}

// History returns recent runs, newest first.
func (m *Manager) History(ctx context.Context, limit int) ([]RunView, error) {
	runs, err := m.db.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]RunView, 0, len(runs))
	for i := range runs {
		out = append(out, *view(&runs[i]))
	}
	return out, nil
}
