// Package extract runs the daily keyword extraction over stored items.
package extract

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aparm539/nwHacks2026/internal/database"
	"github.com/aparm539/nwHacks2026/internal/keywords"
	"github.com/aparm539/nwHacks2026/internal/oracle"
)

// Options tunes the scoring request and the stored ranking size.
type Options struct {
	MaxKeywords    int
	NGramMax       int
	Language       string
	DedupThreshold float64
	TopN           int
	MaxTextChars   int
}

// Extractor turns each day's items into a ranked keyword list.
type Extractor struct {
	db     *database.DB
	scorer oracle.Scorer
	cache  *keywords.OverrideCache
	stats  *keywords.StatsUpdater
	opts   Options
	now    func() time.Time
}

// New creates an extractor.
func New(db *database.DB, scorer oracle.Scorer, cache *keywords.OverrideCache, opts Options) *Extractor {
	if opts.TopN <= 0 {
		opts.TopN = 75
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = 50
	}
	return &Extractor{
		db:     db,
		scorer: scorer,
		cache:  cache,
		stats:  keywords.NewStatsUpdater(db),
		opts:   opts,
		now:    time.Now,
	}
}

// RunOptions selects which days to process.
type RunOptions struct {
	Force bool   // reprocess every day with items
	Date  string // process only this YYYY-MM-DD day
}

// Day status values recorded in extraction_runs.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// DayResult is the outcome for one day.
type DayResult struct {
	Date         string `json:"date"`
	Mode         string `json:"mode"`
	Status       string `json:"status"`
	Items        int    `json:"items"`
	Keywords     int    `json:"keywords"`
	StatsUpdated int    `json:"stats_updated"`
	StatsFailed  int    `json:"stats_failed"`
	Error        string `json:"error,omitempty"`
}

// Result summarises an extraction run.
type Result struct {
	Days      []DayResult `json:"days"`
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
}

// Run extracts keywords for the selected days, oldest first. A day whose
// scoring fails is recorded and skipped; the remaining days still run.
func (e *Extractor) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	today := e.now().UTC().Format(database.DateLayout)

	days, processed, err := e.selectDays(opts, today)
	if err != nil {
		return nil, err
	}
	log.Printf("Extracting keywords for %d day(s)", len(days))

	result := &Result{Days: []DayResult{}}
	for _, date := range days {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		dr := e.processDay(ctx, date, processed[date], today)
		result.Days = append(result.Days, dr)
		switch dr.Status {
		case StatusOK:
			result.Processed++
		case StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}
	return result, nil
}

func (e *Extractor) selectDays(opts RunOptions, today string) ([]string, map[string]bool, error) {
	processed, err := e.db.GetProcessedDates()
	if err != nil {
		return nil, nil, fmt.Errorf("loading processed days: %w", err)
	}

	if opts.Date != "" {
		if _, err := database.ParseDate(opts.Date); err != nil {
			return nil, nil, err
		}
		return []string{opts.Date}, processed, nil
	}

	dates, err := e.db.GetItemDates()
	if err != nil {
		return nil, nil, fmt.Errorf("loading item days: %w", err)
	}

	seen := map[string]bool{today: true}
	days := []string{today}
	for _, d := range dates {
		if seen[d] {
			continue
		}
		if opts.Force || !processed[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Strings(days)
	return days, processed, nil
}

func (e *Extractor) processDay(ctx context.Context, date string, dayProcessed bool, today string) DayResult {
	dr := DayResult{Date: date, Mode: dayMode(dayProcessed, date == today).String()}

	items, err := e.db.GetItemsForDay(date)
	if err != nil {
		return e.fail(dr, fmt.Errorf("loading items: %w", err))
	}
	dr.Items = len(items)

	text := keywords.PrepareText(items, e.opts.MaxTextChars)
	if text == "" {
		dr.Status = StatusSkipped
		e.record(dr)
		return dr
	}

	resp, err := e.scorer.Extract(ctx, oracle.Request{
		Text:                   text,
		MaxKeywords:            e.opts.MaxKeywords,
		Language:               e.opts.Language,
		DeduplicationThreshold: e.opts.DedupThreshold,
		NGramMax:               e.opts.NGramMax,
	})
	if err != nil {
		return e.fail(dr, fmt.Errorf("scoring: %w", err))
	}

	overrides, err := e.cache.Get(ctx)
	if err != nil {
		return e.fail(dr, fmt.Errorf("loading overrides: %w", err))
	}
	groups := keywords.Aggregate(resp.Keywords, overrides, e.opts.TopN)

	counted, err := e.db.GetCountedKeywords(date)
	if err != nil {
		return e.fail(dr, fmt.Errorf("loading counted keywords: %w", err))
	}

	rows := make([]database.DailyKeyword, 0, len(groups))
	modes := make(map[string]keywords.DayMode, len(groups))
	for _, g := range groups {
		stem := g.Stem
		rows = append(rows, database.DailyKeyword{
			Date:         date,
			Keyword:      g.Keyword,
			Stem:         &stem,
			Score:        g.Score,
			Rank:         g.Rank,
			VariantCount: g.VariantCount(),
			ItemCount:    len(items),
		})
		modes[g.Keyword] = dayMode(counted[g.Keyword], date == today)
	}
	if err := e.db.ReplaceDailyKeywords(date, rows); err != nil {
		return e.fail(dr, fmt.Errorf("storing ranking: %w", err))
	}
	dr.Keywords = len(rows)

	var fallback *keywords.Anchor
	if m, err := e.db.LatestItemForDay(date); err == nil && m != nil {
		fallback = &keywords.Anchor{ItemID: m.ItemID, Time: m.Time}
	}
	upd := e.stats.Update(ctx, date, groups, modes, fallback)
	dr.StatsUpdated = upd.Updated
	dr.StatsFailed = upd.Failed

	dr.Status = StatusOK
	e.record(dr)
	log.Printf("Keywords for %s: %d ranked from %d items (%s)", date, dr.Keywords, dr.Items, dr.Mode)
	return dr
}

// dayMode picks the stats merge rule. counted means this day already counted
// for the keyword (or, for the day label, that the day was processed before).
func dayMode(counted, isToday bool) keywords.DayMode {
	switch {
	case !counted:
		return keywords.ModeNewDay
	case isToday:
		return keywords.ModeRerun
	default:
		return keywords.ModeHistorical
	}
}

func (e *Extractor) fail(dr DayResult, err error) DayResult {
	log.Printf("Keyword extraction for %s failed: %v", dr.Date, err)
	dr.Status = StatusFailed
	dr.Error = err.Error()
	e.record(dr)
	return dr
}

func (e *Extractor) record(dr DayResult) {
	run := database.ExtractionRun{
		Date:         dr.Date,
		Mode:         dr.Mode,
		ItemCount:    dr.Items,
		KeywordCount: dr.Keywords,
		Status:       dr.Status,
	}
	if dr.Error != "" {
		msg := dr.Error
		run.ErrorMessage = &msg
	}
	if _, err := e.db.RecordExtraction(run); err != nil {
		log.Printf("Error recording extraction for %s: %v", dr.Date, err)
	}
}
