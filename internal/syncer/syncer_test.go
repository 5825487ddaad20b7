package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/hn"
)

type fakeFeed struct {
	maxID   int64
	items   map[int64]*hn.Item
	users   map[string]*hn.User
	probes  int
	onFetch func()
}

func (f *fakeFeed) FetchMaxItem(ctx context.Context) (int64, error) {
	if f.maxID == 0 {
		return 0, errors.New("feed down")
	}
	return f.maxID, nil
}

func (f *fakeFeed) FetchItem(ctx context.Context, id int64) *hn.Item {
	f.probes++
	return f.items[id]
}

func (f *fakeFeed) FetchItems(ctx context.Context, ids []int64, concurrency int) []*hn.Item {
	if hook := f.onFetch; hook != nil {
		f.onFetch = nil
		hook()
	}
	out := make([]*hn.Item, len(ids))
	for i, id := range ids {
		out[i] = f.items[id]
	}
	return out
}

func (f *fakeFeed) FetchUsers(ctx context.Context, ids []string, concurrency int) map[string]*hn.User {
	out := make(map[string]*hn.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// linearFeed has items 1..maxID where item boundaryID sits exactly at boundary.
func linearFeed(maxID, boundaryID, boundary int64) *fakeFeed {
	f := &fakeFeed{maxID: maxID, items: make(map[int64]*hn.Item), users: make(map[string]*hn.User)}
	for id := int64(1); id <= maxID; id++ {
		f.items[id] = &hn.Item{ID: id, Type: "comment", Time: boundary + (id - boundaryID), By: "alice"}
	}
	f.users["alice"] = &hn.User{ID: "alice", Karma: 10}
	return f
}

var fixedNow = time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, feed Feed, opts Options) (*Manager, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	m := NewManager(db, feed, opts)
	m.now = func() time.Time { return fixedNow }
	return m, db
}

func TestChunkWindow(t *testing.T) {
	tests := []struct {
		cursor, target int64
		size           int
		first, last    int64
		n              int
	}{
		{1000, 400, 500, 999, 500, 500},
		{500, 400, 500, 499, 400, 100},
		{401, 400, 500, 400, 400, 1},
		{400, 400, 500, 0, 0, 0},
	}
	for _, tt := range tests {
		ids := chunkWindow(tt.cursor, tt.target, tt.size)
		if len(ids) != tt.n {
			t.Errorf("cursor %d: expected %d ids, got %d", tt.cursor, tt.n, len(ids))
			continue
		}
		if tt.n > 0 && (ids[0] != tt.first || ids[len(ids)-1] != tt.last) {
			t.Errorf("cursor %d: expected %d..%d, got %d..%d", tt.cursor, tt.first, tt.last, ids[0], ids[len(ids)-1])
		}
	}
}

func TestFindIDAtOrBeforeExact(t *testing.T) {
	feed := linearFeed(1000, 400, 1_700_000_000)
	got := FindIDAtOrBefore(context.Background(), feed, 1_700_000_000, 1000, 1, 0)
	if got != 400 {
		t.Errorf("expected 400, got %d", got)
	}
	if feed.probes > 11 {
		t.Errorf("expected a logarithmic number of probes, got %d", feed.probes)
	}

	got = FindIDAtOrBefore(context.Background(), feed, 1_700_000_000, 1000, 1, 1000)
	if got != 1 {
		t.Errorf("expected margin to clamp to minID, got %d", got)
	}
}

func TestFindIDAtOrBeforeNothingQualifies(t *testing.T) {
	feed := linearFeed(100, 1, 1_700_000_000)
	got := FindIDAtOrBefore(context.Background(), feed, 1_600_000_000, 100, 1, 10)
	if got != 1 {
		t.Errorf("expected minID, got %d", got)
	}
}

func TestFindIDAtOrBeforeWithInversions(t *testing.T) {
	const k = 5000
	const margin = 50
	feed := &fakeFeed{items: make(map[int64]*hn.Item)}
	for id := int64(1); id <= k; id++ {
		ts := 1_000_000 + id*10
		// Local inversions: some items are stamped slightly early or late.
		if id%7 == 0 {
			ts += 25
		}
		if id%11 == 0 {
			ts -= 25
		}
		feed.items[id] = &hn.Item{ID: id, Type: "story", Time: ts}
	}

	for _, target := range []int64{1_003_000, 1_010_000, 1_025_003, 1_049_990} {
		got := FindIDAtOrBefore(context.Background(), feed, target, k, 1, margin)
		if best := feed.items[got+margin]; best == nil || best.Time > target {
			t.Errorf("target %d: result %d is not margin below a qualifying item", target, got)
		}
		for id := got + margin + 1; id <= k; id++ {
			if it := feed.items[id]; it.Time <= target && id-got > 2*margin {
				t.Errorf("target %d: item %d (t=%d) lies more than %d above result %d", target, id, it.Time, 2*margin, got)
				break
			}
		}
	}
}

func TestFindIDAtOrBeforeMissingProbesSearchLower(t *testing.T) {
	feed := linearFeed(100, 80, 1_700_000_000)
	delete(feed.items, 50)
	// The first probe (50) is missing, so the search settles below it.
	got := FindIDAtOrBefore(context.Background(), feed, 1_700_000_000, 100, 1, 0)
	if got >= 50 {
		t.Errorf("expected result below the missing probe, got %d", got)
	}
	if it := feed.items[got]; it == nil || it.Time > 1_700_000_000 {
		t.Errorf("expected a qualifying item, got %d", got)
	}
}

func TestScenarioBootstrapTwoChunks(t *testing.T) {
	boundary := fixedNow.AddDate(0, 0, -7).Unix()
	feed := linearFeed(1000, 400, boundary)
	m, db := newTestManager(t, feed, Options{ChunkSize: 500, Concurrency: 20, BootstrapDays: 7, SafetyMargin: 0})
	ctx := context.Background()

	start, err := m.StartOrResume(ctx)
	require.NoError(t, err)
	require.False(t, start.Resumed)
	run := start.Run
	if run.StartMaxItem != 1000 || run.TargetEndItem != 400 || run.TotalItems != 600 {
		t.Fatalf("unexpected run %+v", run.SyncRun)
	}

	first, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)
	if first.Cursor != 500 || first.Done {
		t.Errorf("expected cursor 500 and not done, got %+v", first)
	}
	if first.Inserted > 500 {
		t.Errorf("expected at most 500 inserted, got %d", first.Inserted)
	}

	second, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)
	if second.Cursor != 400 || !second.Done || second.Status != database.RunStatusCompleted {
		t.Errorf("expected completed at 400, got %+v", second)
	}

	stored, _ := db.GetRun(run.ID)
	if stored.ItemsFetched != int64(first.Inserted+second.Inserted) || stored.Progress() != 100 {
		t.Errorf("unexpected stored run %+v", stored)
	}

	late, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)
	if !late.Done || late.Inserted != 0 {
		t.Errorf("expected idempotent late call, got %+v", late)
	}
}

func TestStartOrResumeSingleActiveRun(t *testing.T) {
	feed := linearFeed(50, 10, fixedNow.AddDate(0, 0, -7).Unix())
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	ctx := context.Background()

	var firstID int64
	for i := 0; i < 5; i++ {
		res, err := m.StartOrResume(ctx)
		require.NoError(t, err)
		if i == 0 {
			firstID = res.Run.ID
			continue
		}
		if !res.Resumed || res.Run.ID != firstID {
			t.Errorf("call %d: expected resume of run %d, got %+v", i, firstID, res)
		}
	}

	runs, _ := db.ListRuns(10)
	if len(runs) != 1 {
		t.Errorf("expected exactly 1 run, got %d", len(runs))
	}
}

func TestStartOrResumeCatchUp(t *testing.T) {
	feed := linearFeed(1200, 400, fixedNow.AddDate(0, 0, -7).Unix())
	m, db := newTestManager(t, feed, Options{ChunkSize: 500})
	ctx := context.Background()

	db.InsertItems([]database.Item{{ID: 900, Type: "story", Time: 1}})
	res, err := m.StartOrResume(ctx)
	require.NoError(t, err)
	if res.Run.TargetEndItem != 900 || res.Run.StartMaxItem != 1200 {
		t.Errorf("expected catch-up run 1200->900, got %+v", res.Run.SyncRun)
	}
	if feed.probes != 0 {
		t.Errorf("expected no boundary search on catch-up, got %d probes", feed.probes)
	}
}

func TestStartFeedUnavailable(t *testing.T) {
	m, _ := newTestManager(t, &fakeFeed{}, Options{})
	if _, err := m.StartOrResume(context.Background()); err == nil {
		t.Error("expected error when high-water mark is unavailable")
	}
}

func TestPauseAndResume(t *testing.T) {
	feed := linearFeed(100, 1, fixedNow.AddDate(0, 0, -7).Unix())
	m, _ := newTestManager(t, feed, Options{ChunkSize: 30})
	ctx := context.Background()

	start, _ := m.StartOrResume(ctx)
	p, err := m.Pause(ctx, start.Run.ID)
	require.NoError(t, err)
	if !p.Changed || p.Run.Status != database.RunStatusPaused {
		t.Errorf("expected paused run, got %+v", p)
	}

	again, err := m.Pause(ctx, start.Run.ID)
	require.NoError(t, err)
	if again.Changed || again.Message == "" {
		t.Errorf("expected no-op pause with message, got %+v", again)
	}

	chunk, err := m.ProcessChunk(ctx, start.Run.ID)
	require.NoError(t, err)
	if chunk.Status != database.RunStatusRunning || chunk.Cursor != 70 {
		t.Errorf("expected chunk to resume the paused run, got %+v", chunk)
	}

	if _, err := m.Pause(ctx, 999); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := m.ProcessChunk(ctx, 999); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestChunkFiltersInvalidAndStubsAuthors(t *testing.T) {
	feed := &fakeFeed{maxID: 10, items: map[int64]*hn.Item{
		9: {ID: 9, Type: "story", Time: 100, By: "known"},
		8: {ID: 8, Type: "", Time: 100},
		7: {ID: 7, Type: "comment", Time: 0},
		6: {ID: 6, Type: "comment", Time: 100, By: "ghost"},
		5: {ID: 5, Type: "comment", Time: 100, By: "known"},
	}, users: map[string]*hn.User{"known": {ID: "known", Karma: 3}}}
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	ctx := context.Background()

	run, err := db.CreateRun(10, 4)
	require.NoError(t, err)
	res, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)

	if res.Requested != 6 || res.Valid != 3 || res.Inserted != 3 {
		t.Errorf("expected 6 requested, 3 valid, 3 inserted; got %+v", res)
	}
	if !res.Done || res.Cursor != 4 {
		t.Errorf("expected done at 4, got %+v", res)
	}

	ghost, _ := db.GetUser("ghost")
	if ghost == nil {
		t.Error("expected id-only row for unfetchable author")
	}
	known, _ := db.GetUser("known")
	if known == nil || known.Karma != 3 {
		t.Errorf("expected fetched author, got %+v", known)
	}
}

func TestConcurrentChunkConflict(t *testing.T) {
	feed := linearFeed(100, 1, 1000)
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	ctx := context.Background()
	run, _ := db.CreateRun(100, 0)

	var inner *ChunkResult
	feed.onFetch = func() {
		var err error
		inner, err = m.ProcessChunk(ctx, run.ID)
		require.NoError(t, err)
	}

	outer, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)
	if inner == nil || inner.Cursor != 90 || inner.Inserted != 10 {
		t.Fatalf("expected inner chunk to commit, got %+v", inner)
	}
	if !outer.Conflict || outer.Inserted != 0 || outer.Cursor != 90 {
		t.Errorf("expected outer chunk to be discarded, got %+v", outer)
	}

	stored, _ := db.GetRun(run.ID)
	if stored.ItemsFetched != 10 {
		t.Errorf("expected progress counted once, got %d", stored.ItemsFetched)
	}
}

func TestDriveToCompletion(t *testing.T) {
	feed := linearFeed(95, 1, 1000)
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	run, _ := db.CreateRun(95, 0)

	res, err := m.Drive(context.Background(), run.ID, 0)
	require.NoError(t, err)
	if !res.Done || res.Chunks != 10 || res.Run.Progress != 100 {
		t.Errorf("unexpected drive result %+v", res)
	}
	if res.Inserted != 94 {
		t.Errorf("expected items 1..94 inserted, got %d", res.Inserted)
	}
}

func TestDriveBudget(t *testing.T) {
	feed := linearFeed(100, 1, 1000)
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	clock := fixedNow
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	run, _ := db.CreateRun(100, 0)

	res, err := m.Drive(context.Background(), run.ID, 3*time.Second)
	require.NoError(t, err)
	if !res.OutOfTime || res.Done {
		t.Errorf("expected budget to stop the loop, got %+v", res)
	}
	if res.Run.Status != database.RunStatusRunning {
		t.Errorf("expected run left running, got %s", res.Run.Status)
	}
	if res.Run.LastFetchedItem != 100-int64(10*res.Chunks) {
		t.Errorf("cursor %d does not match %d chunks", res.Run.LastFetchedItem, res.Chunks)
	}
}

func TestDriveStopsWhenPausedBetweenChunks(t *testing.T) {
	feed := linearFeed(100, 1, 1000)
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	run, _ := db.CreateRun(100, 0)
	ctx := context.Background()

	// Clock reads: deadline, before chunk 1, before chunk 2.
	reads := 0
	m.now = func() time.Time {
		reads++
		if reads == 3 {
			if _, err := m.Pause(ctx, run.ID); err != nil {
				t.Errorf("Pause: %v", err)
			}
		}
		return fixedNow
	}

	res, err := m.Drive(ctx, run.ID, time.Hour)
	require.NoError(t, err)
	if !res.Paused || res.Chunks != 1 {
		t.Errorf("expected drive to stop after one chunk, got %+v", res)
	}
	if res.Run.Status != database.RunStatusPaused || res.Run.LastFetchedItem != 90 {
		t.Errorf("expected run to stay paused at 90, got %s at %d", res.Run.Status, res.Run.LastFetchedItem)
	}

	again, err := m.Drive(ctx, run.ID, 0)
	require.NoError(t, err)
	if !again.Paused || again.Chunks != 0 || again.Run.Status != database.RunStatusPaused {
		t.Errorf("expected drive not to resume a paused run, got %+v", again)
	}
}

func TestDriveCancelled(t *testing.T) {
	feed := linearFeed(100, 1, 1000)
	m, db := newTestManager(t, feed, Options{ChunkSize: 10})
	run, _ := db.CreateRun(100, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := m.Drive(ctx, run.ID, 0)
	require.NoError(t, err)
	if res.Chunks != 0 || res.Run.LastFetchedItem != 100 {
		t.Errorf("expected no progress after cancel, got %+v", res)
	}
}

func TestFailAndHistory(t *testing.T) {
	m, db := newTestManager(t, &fakeFeed{}, Options{})
	ctx := context.Background()
	run, _ := db.CreateRun(10, 0)

	require.NoError(t, m.Fail(ctx, run.ID, fmt.Errorf("feed gone")))
	got, err := m.Get(ctx, run.ID)
	require.NoError(t, err)
	if got.Status != database.RunStatusFailed || got.ErrorMessage == nil {
		t.Errorf("expected failed run, got %+v", got.SyncRun)
	}

	chunk, err := m.ProcessChunk(ctx, run.ID)
	require.NoError(t, err)
	if chunk.Done || chunk.Message == "" {
		t.Errorf("expected failure reported as data, got %+v", chunk)
	}

	status, err := m.Status(ctx)
	require.NoError(t, err)
	if status.Active != nil || status.Latest == nil || status.Latest.ID != run.ID {
		t.Errorf("unexpected status %+v", status)
	}

	history, err := m.History(ctx, 5)
	require.NoError(t, err)
	if len(history) != 1 {
		t.Errorf("expected 1 run in history, got %d", len(history))
	}

	if err := m.Fail(ctx, 404, errors.New("x")); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
