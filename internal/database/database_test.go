package database

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func story(id, unix int64, by, title string) Item {
	it := Item{ID: id, Type: "story", Time: unix, Title: ptr(title)}
	if by != "" {
		it.By = ptr(by)
	}
	return it
}

func TestInsertItemsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertUsers([]User{{ID: "pg", Karma: 100}}); err != nil {
		t.Fatalf("InsertUsers: %v", err)
	}

	n, err := db.InsertItems([]Item{story(1, 1700000000, "pg", "First title")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 inserted, got %d", n)
	}

	n, err = db.InsertItems([]Item{story(1, 1700000999, "pg", "Changed title")})
	if err != nil {
		t.Fatalf("duplicate insert should not error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted for duplicate, got %d", n)
	}

	it, err := db.GetItem(1)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if it == nil || *it.Title != "First title" || it.Time != 1700000000 {
		t.Errorf("expected first insert to win, got %+v", it)
	}
}

func TestInsertItemRequiresUser(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertItems([]Item{story(1, 1700000000, "ghost", "x")}); err == nil {
		t.Error("expected foreign key error for unknown author")
	}
}

func TestMissingUserIDs(t *testing.T) {
	db := openTestDB(t)
	db.InsertUsers([]User{{ID: "a"}, {ID: "c"}})

	missing, err := db.MissingUserIDs([]string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(missing, ",") != "b,d" {
		t.Errorf("expected b,d missing, got %v", missing)
	}
}

func TestMaxItemIDEmpty(t *testing.T) {
	db := openTestDB(t)
	max, err := db.MaxItemID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max != 0 {
		t.Errorf("expected 0 on empty store, got %d", max)
	}
}

func TestGetItemsForDay(t *testing.T) {
	db := openTestDB(t)
	// 2026-02-06 00:00:00 UTC
	const day = int64(1770336000)
	db.InsertItems([]Item{
		story(1, day-1, "", "yesterday"),
		story(2, day, "", "midnight"),
		story(3, day+86399, "", "last second"),
		story(4, day+86400, "", "tomorrow"),
	})

	items, err := db.GetItemsForDay("2026-02-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ID != 2 || items[1].ID != 3 {
		t.Errorf("expected items 2 and 3, got %+v", items)
	}

	dates, err := db.GetItemDates()
	if err != nil {
		t.Fatalf("GetItemDates: %v", err)
	}
	if strings.Join(dates, ",") != "2026-02-05,2026-02-06,2026-02-07" {
		t.Errorf("unexpected dates %v", dates)
	}
}

func TestLatestMention(t *testing.T) {
	db := openTestDB(t)
	db.InsertItems([]Item{
		story(1, 100, "", "Rust compiler internals"),
		story(2, 300, "", "Unrelated"),
		{ID: 3, Type: "comment", Time: 200, Text: ptr("I love the RUST COMPILER")},
		story(4, 400, "", "100% pure_go"),
	})

	m, err := db.LatestMention("rust compiler")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.ItemID != 3 || m.Time != 200 {
		t.Errorf("expected item 3 at 200, got %+v", m)
	}

	m, _ = db.LatestMention("no such phrase")
	if m != nil {
		t.Errorf("expected nil, got %+v", m)
	}

	// Wildcard characters in the keyword are matched literally.
	m, _ = db.LatestMention("0% p")
	if m == nil || m.ItemID != 4 {
		t.Errorf("expected literal %% match on item 4, got %+v", m)
	}
	m, _ = db.LatestMention("100_")
	if m != nil {
		t.Errorf("expected underscore to match literally, got %+v", m)
	}

	// Case folding covers non-ASCII letters on both sides.
	db.InsertItems([]Item{story(5, 500, "", "ÜBER Café opens"), {ID: 6, Type: "comment", Time: 50, Text: ptr("über café")}})
	m, _ = db.LatestMention("Über café")
	if m == nil || m.ItemID != 5 {
		t.Errorf("expected non-ASCII case-insensitive match on item 5, got %+v", m)
	}
}

func TestCreateRunSingleActive(t *testing.T) {
	db := openTestDB(t)
	run, err := db.CreateRun(1000, 400)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.TotalItems != 600 || run.LastFetchedItem != 1000 || run.Status != RunStatusRunning {
		t.Errorf("unexpected run %+v", run)
	}

	if _, err := db.CreateRun(2000, 1000); !errors.Is(err, ErrActiveRunExists) {
		t.Errorf("expected ErrActiveRunExists, got %v", err)
	}

	changed, err := db.TransitionRun(run.ID, RunStatusPaused, nil, RunStatusRunning)
	if err != nil || !changed {
		t.Fatalf("pause: changed=%v err=%v", changed, err)
	}
	if _, err := db.CreateRun(2000, 1000); !errors.Is(err, ErrActiveRunExists) {
		t.Errorf("expected ErrActiveRunExists while paused, got %v", err)
	}

	db.TransitionRun(run.ID, RunStatusCompleted, nil, RunStatusPaused)
	if _, err := db.CreateRun(2000, 1000); err != nil {
		t.Errorf("expected new run after completion, got %v", err)
	}
}

func TestCreateRunClampsTarget(t *testing.T) {
	db := openTestDB(t)
	run, err := db.CreateRun(100, 500)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.TargetEndItem != 100 || run.TotalItems != 0 {
		t.Errorf("expected clamped target, got %+v", run)
	}
	if run.Progress() != 100 {
		t.Errorf("expected 100%% for empty run, got %d", run.Progress())
	}
}

func TestApplyChunk(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.CreateRun(1000, 400)

	inserted, applied, err := db.ApplyChunk(ChunkCommit{
		RunID:          run.ID,
		ExpectedCursor: 1000,
		NewCursor:      500,
		Users:          []User{{ID: "a"}},
		Items:          []Item{story(999, 1, "a", "x"), story(500, 2, "", "y")},
	})
	if err != nil {
		t.Fatalf("ApplyChunk: %v", err)
	}
	if !applied || inserted != 2 {
		t.Errorf("expected applied with 2 inserted, got applied=%v inserted=%d", applied, inserted)
	}

	got, _ := db.GetRun(run.ID)
	if got.LastFetchedItem != 500 || got.ItemsFetched != 2 || got.Status != RunStatusRunning {
		t.Errorf("unexpected run after chunk %+v", got)
	}
	if got.Progress() != 83 {
		t.Errorf("expected 83%% progress, got %d", got.Progress())
	}

	// A duplicate call computed from the stale cursor commits nothing.
	inserted, applied, err = db.ApplyChunk(ChunkCommit{
		RunID:          run.ID,
		ExpectedCursor: 1000,
		NewCursor:      500,
		Items:          []Item{story(998, 3, "", "z")},
	})
	if err != nil {
		t.Fatalf("stale ApplyChunk: %v", err)
	}
	if applied || inserted != 0 {
		t.Errorf("expected stale chunk to be rejected, applied=%v inserted=%d", applied, inserted)
	}
	if it, _ := db.GetItem(998); it != nil {
		t.Error("expected stale chunk items to be rolled back")
	}

	_, applied, _ = db.ApplyChunk(ChunkCommit{
		RunID: run.ID, ExpectedCursor: 500, NewCursor: 400, Done: true,
	})
	if !applied {
		t.Fatal("expected final chunk to apply")
	}
	got, _ = db.GetRun(run.ID)
	if got.Status != RunStatusCompleted || got.CompletedAt == nil || got.Progress() != 100 {
		t.Errorf("expected completed run, got %+v", got)
	}
}

func TestTransitionRunNoop(t *testing.T) {
	db := openTestDB(t)
	run, _ := db.CreateRun(10, 0)

	changed, err := db.TransitionRun(run.ID, RunStatusRunning, nil, RunStatusPaused)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Error("expected no change when run is not paused")
	}

	msg := "feed unreachable"
	changed, _ = db.TransitionRun(run.ID, RunStatusFailed, &msg, RunStatusRunning)
	if !changed {
		t.Fatal("expected failure transition")
	}
	got, _ := db.GetRun(run.ID)
	if got.ErrorMessage == nil || *got.ErrorMessage != msg || got.CompletedAt == nil {
		t.Errorf("expected failed run with message, got %+v", got)
	}

	runs, _ := db.ListRuns(10)
	if len(runs) != 1 {
		t.Errorf("expected 1 run in history, got %d", len(runs))
	}
}

func TestSyncRunProgress(t *testing.T) {
	tests := []struct {
		name                string
		start, target, last int64
		want                int
	}{
		{"not started", 1000, 400, 1000, 0},
		{"half", 1000, 0, 500, 50},
		{"done", 1000, 400, 400, 100},
		{"empty run", 400, 400, 400, 100},
		{"rounding", 3, 0, 2, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SyncRun{StartMaxItem: tt.start, TargetEndItem: tt.target, LastFetchedItem: tt.last,
				TotalItems: tt.start - tt.target}
			if got := r.Progress(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestDailyKeywordsReplace(t *testing.T) {
	db := openTestDB(t)
	err := db.ReplaceDailyKeywords("2026-02-06", []DailyKeyword{
		{Keyword: "rust", Score: 0.1, Rank: 1, VariantCount: 2, ItemCount: 10},
		{Keyword: "go", Score: 0.2, Rank: 2, VariantCount: 1, ItemCount: 10},
	})
	if err != nil {
		t.Fatalf("ReplaceDailyKeywords: %v", err)
	}
	db.ReplaceDailyKeywords("2026-02-06", []DailyKeyword{
		{Keyword: "zig", Score: 0.05, Rank: 1, VariantCount: 1, ItemCount: 12},
	})

	kws, _ := db.GetDailyKeywords("2026-02-06")
	if len(kws) != 1 || kws[0].Keyword != "zig" {
		t.Errorf("expected day to be replaced, got %+v", kws)
	}

	db.ReplaceDailyKeywords("2026-02-04", []DailyKeyword{{Keyword: "a", Rank: 1}})
	prev, err := db.GetPreviousKeywordDate("2026-02-06")
	if err != nil {
		t.Fatalf("GetPreviousKeywordDate: %v", err)
	}
	if prev != "2026-02-04" {
		t.Errorf("expected 2026-02-04, got %q", prev)
	}
	prev, _ = db.GetPreviousKeywordDate("2026-02-04")
	if prev != "" {
		t.Errorf("expected no previous date, got %q", prev)
	}

	dates, _ := db.GetKeywordDates(1)
	if len(dates) != 1 || dates[0] != "2026-02-06" {
		t.Errorf("expected newest date only, got %v", dates)
	}
}

func TestKeywordStatSave(t *testing.T) {
	db := openTestDB(t)
	s := KeywordStat{Keyword: "rust", Stem: ptr("rust"), LastItemTime: 500, LastItemID: 5,
		FirstSeenTime: 100, TotalDaysAppeared: 3}
	if err := db.SaveKeywordStat(s, "2026-02-05"); err != nil {
		t.Fatalf("SaveKeywordStat: %v", err)
	}
	s.LastItemTime = 600
	s.TotalDaysAppeared = 4
	if err := db.SaveKeywordStat(s, "2026-02-06"); err != nil {
		t.Fatalf("SaveKeywordStat update: %v", err)
	}

	got, err := db.GetKeywordStat("rust")
	if err != nil {
		t.Fatalf("GetKeywordStat: %v", err)
	}
	if got.LastItemTime != 600 || got.TotalDaysAppeared != 4 || got.FirstSeenTime != 100 {
		t.Errorf("unexpected stat %+v", got)
	}

	missing, _ := db.GetKeywordStat("nope")
	if missing != nil {
		t.Error("expected nil for unknown keyword")
	}
}

func TestCountedKeywordsSurviveRankingReplace(t *testing.T) {
	db := openTestDB(t)
	s := KeywordStat{Keyword: "kernel", LastItemTime: 500, LastItemID: 5, FirstSeenTime: 500, TotalDaysAppeared: 1}
	if err := db.SaveKeywordStat(s, "2026-02-11"); err != nil {
		t.Fatalf("SaveKeywordStat: %v", err)
	}
	if err := db.SaveKeywordStat(s, "2026-02-11"); err != nil {
		t.Fatalf("SaveKeywordStat again: %v", err)
	}

	// A later ranking for the day without the keyword must not clear the mark.
	if err := db.ReplaceDailyKeywords("2026-02-11", []DailyKeyword{{Date: "2026-02-11", Keyword: "rust", Rank: 1}}); err != nil {
		t.Fatalf("ReplaceDailyKeywords: %v", err)
	}

	counted, err := db.GetCountedKeywords("2026-02-11")
	if err != nil {
		t.Fatalf("GetCountedKeywords: %v", err)
	}
	if len(counted) != 1 || !counted["kernel"] {
		t.Errorf("expected only kernel counted, got %v", counted)
	}
	other, _ := db.GetCountedKeywords("2026-02-10")
	if len(other) != 0 {
		t.Errorf("expected nothing counted on another day, got %v", other)
	}
}

func TestVariantNesting(t *testing.T) {
	db := openTestDB(t)
	_, err := db.AddVariant(KeywordVariant{VariantKeyword: "golang", VariantStem: "golang",
		ParentKeyword: "go", ParentStem: "go"})
	if err != nil {
		t.Fatalf("AddVariant: %v", err)
	}

	// golang is a variant, so it cannot become a parent.
	_, err = db.AddVariant(KeywordVariant{VariantKeyword: "go lang", VariantStem: "go lang",
		ParentKeyword: "golang", ParentStem: "golang"})
	if !errors.Is(err, ErrVariantNesting) {
		t.Errorf("expected ErrVariantNesting, got %v", err)
	}

	// go is a parent, so it cannot become a variant.
	_, err = db.AddVariant(KeywordVariant{VariantKeyword: "go", VariantStem: "go",
		ParentKeyword: "google", ParentStem: "googl"})
	if !errors.Is(err, ErrVariantNesting) {
		t.Errorf("expected ErrVariantNesting, got %v", err)
	}

	_, err = db.AddVariant(KeywordVariant{VariantKeyword: "golang", VariantStem: "golang",
		ParentKeyword: "gopher", ParentStem: "gopher"})
	if !errors.Is(err, ErrVariantExists) {
		t.Errorf("expected ErrVariantExists, got %v", err)
	}

	removed, _ := db.RemoveVariant("golang")
	if !removed {
		t.Error("expected variant to be removed")
	}
	list, _ := db.ListVariants()
	if len(list) != 0 {
		t.Errorf("expected no variants, got %+v", list)
	}
}

func TestBlacklistOverrides(t *testing.T) {
	db := openTestDB(t)
	if err := db.SetBlacklistOverride("crypto", ActionBlock); err != nil {
		t.Fatalf("SetBlacklistOverride: %v", err)
	}
	if err := db.SetBlacklistOverride("crypto", ActionAllow); err != nil {
		t.Fatalf("SetBlacklistOverride replace: %v", err)
	}
	if err := db.SetBlacklistOverride("x", "maybe"); err == nil {
		t.Error("expected invalid action error")
	}

	list, _ := db.ListBlacklistOverrides()
	if len(list) != 1 || list[0].Action != ActionAllow {
		t.Errorf("expected single allow override, got %+v", list)
	}

	removed, _ := db.RemoveBlacklistOverride("crypto")
	if !removed {
		t.Error("expected override to be removed")
	}
	removed, _ = db.RemoveBlacklistOverride("crypto")
	if removed {
		t.Error("expected second remove to be a no-op")
	}
}

func TestExtractionRuns(t *testing.T) {
	db := openTestDB(t)
	db.RecordExtraction(ExtractionRun{Date: "2026-02-05", Mode: "new_day", Status: "ok", KeywordCount: 3})
	msg := "oracle down"
	db.RecordExtraction(ExtractionRun{Date: "2026-02-06", Mode: "new_day", Status: "failed", ErrorMessage: &msg})

	processed, err := db.GetProcessedDates()
	if err != nil {
		t.Fatalf("GetProcessedDates: %v", err)
	}
	if !processed["2026-02-05"] || processed["2026-02-06"] {
		t.Errorf("expected only the successful day to count, got %v", processed)
	}

	runs, _ := db.GetExtractionRuns(10)
	if len(runs) != 2 || runs[0].Status != "failed" {
		t.Errorf("expected newest failed run first, got %+v", runs)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	db.InsertUsers([]User{{ID: "a"}})
	db.InsertItems([]Item{story(7, 100, "a", "x"), {ID: 8, Type: "comment", Time: 200}})
	db.CreateRun(8, 0)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalItems != 2 || stats.Stories != 1 || stats.Comments != 1 {
		t.Errorf("unexpected item counts %+v", stats)
	}
	if stats.Users != 1 || stats.MaxItemID != 8 || stats.SyncRuns != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGetToday(t *testing.T) {
	today := GetToday()
	if len(today) != 10 {
		t.Errorf("expected 10-char date, got %q", today)
	}
	if today[4] != '-' || today[7] != '-' {
		t.Errorf("expected YYYY-MM-DD format, got %q", today)
	}
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2026-02-06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != 1770336000 || end-start != 86400 {
		t.Errorf("unexpected bounds %d..%d", start, end)
	}
	if DateOf(start) != "2026-02-06" || DateOf(end-1) != "2026-02-06" || DateOf(end) != "2026-02-07" {
		t.Error("DateOf does not agree with DayBounds")
	}
	if _, _, err := DayBounds("06/02/2026"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestFormatDateDisplay(t *testing.T) {
	if got := FormatDateDisplay("2026-02-06"); got != "Feb 06, 2026" {
		t.Errorf("expected 'Feb 06, 2026', got %q", got)
	}
	if got := FormatDateDisplay("garbage"); got != "garbage" {
		t.Errorf("expected passthrough, got %q", got)
	}
}
