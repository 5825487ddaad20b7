package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// ChunkResult is the outcome of one ProcessChunk call.
type ChunkResult struct {
	RunID     int64              `json:"run_id"`
	Status    database.RunStatus `json:"status"`
	Cursor    int64              `json:"cursor"`
	Requested int                `json:"requested"`
	Valid     int                `json:"valid"`
	Inserted  int                `json:"inserted"`
	Progress  int                `json:"progress"`
	Done      bool               `json:"done"`
	Conflict  bool               `json:"conflict,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// chunkWindow returns the IDs of the next chunk, highest first: from cursor-1
// down to max(target, cursor-size).
func chunkWindow(cursor, target int64, size int) []int64 {
	low := cursor - int64(size)
	if low < target {
		low = target
	}
	if cursor-1 < low {
		return nil
	}
	ids := make([]int64, 0, cursor-low)
	for id := cursor - 1; id >= low; id-- {
		ids = append(ids, id)
	}
	return ids
}

// ProcessChunk fetches and stores the next window of items for a run and
// advances its cursor. Items, authors and the cursor commit together; a call
// racing another chunk for the same run commits nothing and reports Conflict.
func (m *Manager) ProcessChunk(ctx context.Context, runID int64) (*ChunkResult, error) {
	run, err := m.db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", runID, err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}

	res := &ChunkResult{RunID: run.ID, Status: run.Status, Cursor: run.LastFetchedItem, Progress: run.Progress()}
	switch run.Status {
	case database.RunStatusCompleted:
		res.Done = true
		res.Message = "run already completed"
		return res, nil
	case database.RunStatusFailed:
		res.Message = "run failed; start a new run"
		return res, nil
	case database.RunStatusPaused:
		if _, err := m.db.TransitionRun(run.ID, database.RunStatusRunning, nil, database.RunStatusPaused); err != nil {
			return nil, fmt.Errorf("resuming run %d: %w", run.ID, err)
		}
	}

	ids := chunkWindow(run.LastFetchedItem, run.TargetEndItem, m.opts.ChunkSize)
	commit := database.ChunkCommit{
		RunID:          run.ID,
		ExpectedCursor: run.LastFetchedItem,
		NewCursor:      run.LastFetchedItem,
		Done:           true,
	}

	if len(ids) > 0 {
		fetched := m.feed.FetchItems(ctx, ids, m.opts.Concurrency)
		// A cancelled fetch looks like a window of missing items; never advance past it.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, it := range fetched {
			if !it.Valid() {
				continue
			}
			commit.Items = append(commit.Items, it.Record())
		}

		commit.Users, err = m.resolveAuthors(ctx, commit.Items)
		if err != nil {
			return nil, err
		}

		commit.NewCursor = ids[len(ids)-1]
		commit.Done = commit.NewCursor <= run.TargetEndItem
	}

	inserted, applied, err := m.db.ApplyChunk(commit)
	if err != nil {
		return nil, fmt.Errorf("committing chunk for run %d: %w", run.ID, err)
	}

	fresh, err := m.db.GetRun(run.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading run %d: %w", run.ID, err)
	}
	if fresh == nil {
		return nil, ErrRunNotFound
	}

	res.Status = fresh.Status
	res.Cursor = fresh.LastFetchedItem
	res.Progress = fresh.Progress()
	res.Done = fresh.Status == database.RunStatusCompleted
	res.Requested = len(ids)
	res.Valid = len(commit.Items)
	if !applied {
		res.Conflict = true
		res.Message = "run advanced concurrently; chunk discarded"
		log.Printf("Run %d: chunk from %d discarded, cursor already moved", run.ID, commit.ExpectedCursor)
		return res, nil
	}

	res.Inserted = inserted
	log.Printf("Run %d: fetched %d/%d items, inserted %d, cursor %d (%d%%)",
		run.ID, res.Valid, res.Requested, inserted, res.Cursor, res.Progress)
	return res, nil
}

// resolveAuthors returns user rows for authors not yet stored, fetched as one
// deduplicated batch. Authors whose profile cannot be fetched get an id-only row.
func (m *Manager) resolveAuthors(ctx context.Context, items []database.Item) ([]database.User, error) {
	seen := make(map[string]struct{})
	var authors []string
	for _, it := range items {
		if it.By == nil || *it.By == "" {
			continue
		}
		if _, ok := seen[*it.By]; ok {
			continue
		}
		seen[*it.By] = struct{}{}
		authors = append(authors, *it.By)
	}

	missing, err := m.db.MissingUserIDs(authors)
	if err != nil {
		return nil, fmt.Errorf("checking authors: %w", err)
	}
	if len(missing) == 0 {
		return nil, nil
	}

	fetched := m.feed.FetchUsers(ctx, missing, m.opts.Concurrency)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users := make([]database.User, 0, len(missing))
	for _, id := range missing {
		if u, ok := fetched[id]; ok {
			users = append(users, u.Record())
			continue
		}
		users = append(users, database.User{ID: id})
	}
	return users, nil
}

// DriveResult summarises a Drive loop.
type DriveResult struct {
	Run       *RunView `json:"run"`
	Chunks    int      `json:"chunks"`
	Inserted  int      `json:"inserted"`
	Done      bool     `json:"done"`
	OutOfTime bool     `json:"out_of_time,omitempty"`
	Paused    bool     `json:"paused,omitempty"`
}

// Drive processes chunks sequentially until the run is done, budget elapses
// (checked before each chunk; 0 means no limit), ctx is cancelled, the run is
// found paused, or another caller is found advancing the same run. Drive never
// resumes a paused run; StartOrResume does that.
func (m *Manager) Drive(ctx context.Context, runID int64, budget time.Duration) (*DriveResult, error) {
	var deadline time.Time
	if budget > 0 {
		deadline = m.now().Add(budget)
	}

	res := &DriveResult{}
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if !deadline.IsZero() && !m.now().Before(deadline) {
			res.OutOfTime = true
			break
		}

		run, err := m.db.GetRun(runID)
		if err != nil {
			return res, fmt.Errorf("loading run %d: %w", runID, err)
		}
		if run == nil {
			return res, ErrRunNotFound
		}
		if run.Status == database.RunStatusPaused {
			res.Paused = true
			break
		}

		chunk, err := m.ProcessChunk(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return res, err
		}
		res.Chunks++
		res.Inserted += chunk.Inserted
		if chunk.Done {
			res.Done = true
			break
		}
		if chunk.Status == database.RunStatusPaused {
			res.Paused = true
			break
		}
		if chunk.Conflict || chunk.Status != database.RunStatusRunning {
			break
		}
	}

	run, err := m.Get(ctx, runID)
	if err != nil {
		return res, err
	}
	res.Run = run
	return res, nil
}
