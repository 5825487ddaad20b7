package keywords

import (
	"context"
	"errors"
	"log"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// DayMode says how a processed day relates to a keyword's existing stats.
type DayMode int

const (
	// ModeNewDay is the first time this day counts for the keyword.
	ModeNewDay DayMode = iota
	// ModeRerun re-extracts the current day as new items arrive.
	ModeRerun
	// ModeHistorical re-extracts a past day that was already counted.
	ModeHistorical
)

func (m DayMode) String() string {
	switch m {
	case ModeNewDay:
		return "new_day"
	case ModeRerun:
		return "rerun"
	case ModeHistorical:
		return "historical"
	}
	return "unknown"
}

// Anchor is the record a keyword was most recently seen in.
type Anchor struct {
	ItemID int64
	Time   int64
}

// MergeStats applies one day's finding to a keyword's stats.
//
//   - no existing row: initialise from found with one day counted
//   - ModeNewDay: last = max, first = min, days + 1
//   - ModeRerun: last overwritten, first and days untouched
//   - ModeHistorical: last = max, first = min, days untouched
func MergeStats(existing *database.KeywordStat, keyword string, stem *string, found Anchor, mode DayMode) database.KeywordStat {
	if existing == nil {
		return database.KeywordStat{
			Keyword:           keyword,
			Stem:              stem,
			LastItemTime:      found.Time,
			LastItemID:        found.ItemID,
			FirstSeenTime:     found.Time,
			TotalDaysAppeared: 1,
		}
	}

	s := *existing
	if stem != nil {
		s.Stem = stem
	}
	switch mode {
	case ModeRerun:
		s.LastItemTime = found.Time
		s.LastItemID = found.ItemID
	case ModeNewDay, ModeHistorical:
		if found.Time > s.LastItemTime {
			s.LastItemTime = found.Time
			s.LastItemID = found.ItemID
		}
		if found.Time < s.FirstSeenTime {
			s.FirstSeenTime = found.Time
		}
		if mode == ModeNewDay {
			s.TotalDaysAppeared++
		}
	}
	return s
}

var errNoAnchor = errors.New("no item mentions the keyword")

// StatsStore is the storage the updater reads and writes.
type StatsStore interface {
	LatestMention(keyword string) (*database.Mention, error)
	GetKeywordStat(keyword string) (*database.KeywordStat, error)
	SaveKeywordStat(s database.KeywordStat, date string) error
}

// StatsUpdater maintains global per-keyword statistics.
type StatsUpdater struct {
	store StatsStore
}

// NewStatsUpdater creates a stats updater.
func NewStatsUpdater(store StatsStore) *StatsUpdater {
	return &StatsUpdater{store: store}
}

// UpdateResult counts the outcome of an Update call.
type UpdateResult struct {
	Updated int
	Failed  int
}

// Update merges each group's most recent global mention into its stats and
// marks date as counted for it. Groups with no matching item fall back to the
// day's anchor. Per-keyword failures are logged and skipped.
func (u *StatsUpdater) Update(ctx context.Context, date string, groups []Group, modes map[string]DayMode, fallback *Anchor) UpdateResult {
	var res UpdateResult
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		if err := u.updateOne(date, g, modes[g.Keyword], fallback); err != nil {
			log.Printf("Stats update failed for %q: %v", g.Keyword, err)
			res.Failed++
			continue
		}
		res.Updated++
	}
	return res
}

func (u *StatsUpdater) updateOne(date string, g Group, mode DayMode, fallback *Anchor) error {
	var found Anchor
	m, err := u.store.LatestMention(g.Keyword)
	if err != nil {
		return err
	}
	switch {
	case m != nil:
		found = Anchor{ItemID: m.ItemID, Time: m.Time}
	case fallback != nil:
		found = *fallback
	default:
		return errNoAnchor
	}

	existing, err := u.store.GetKeywordStat(g.Keyword)
	if err != nil {
		return err
	}
	var stem *string
	if g.Stem != "" {
		s := g.Stem
		stem = &s
	}
	return u.store.SaveKeywordStat(MergeStats(existing, g.Keyword, stem, found, mode), date)
}
