// Package trends compares daily keyword rankings across days.
package trends

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// RankThreshold is the rank movement absorbed as noise before a keyword counts as up or down.
const RankThreshold = 2

// Trend labels.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
	TrendNew    = "new"
)

// KeywordTrend is one keyword on a day compared with the preceding day that has data.
type KeywordTrend struct {
	Keyword      string  `json:"keyword"`
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	VariantCount int     `json:"variant_count"`
	PreviousRank *int    `json:"previous_rank"`
	RankChange   int     `json:"rank_change"`
	Trend        string  `json:"trend"`
}

// key matches the same canonical keyword across days. The stem is stable even
// when the chosen display form changes.
func key(k database.DailyKeyword) string {
	if k.Stem != nil && *k.Stem != "" {
		return *k.Stem
	}
	return strings.ToLower(k.Keyword)
}

func ranks(list []database.DailyKeyword) map[string]int {
	m := make(map[string]int, len(list))
	for _, k := range list {
		m[key(k)] = k.Rank
	}
	return m
}

// DayOverDay classifies every keyword in current against previous.
// rankChange = previousRank - currentRank, so a positive change is an improvement.
func DayOverDay(current, previous []database.DailyKeyword) []KeywordTrend {
	prev := ranks(previous)
	out := make([]KeywordTrend, 0, len(current))
	for _, k := range current {
		t := KeywordTrend{
			Keyword:      k.Keyword,
			Rank:         k.Rank,
			Score:        k.Score,
			VariantCount: k.VariantCount,
			Trend:        TrendNew,
		}
		if r, ok := prev[key(k)]; ok {
			r := r
			t.PreviousRank = &r
			t.RankChange = r - k.Rank
			switch {
			case t.RankChange > RankThreshold:
				t.Trend = TrendUp
			case t.RankChange < -RankThreshold:
				t.Trend = TrendDown
			default:
				t.Trend = TrendStable
			}
		}
		out = append(out, t)
	}
	return out
}

// Mover is a keyword's movement across a window of days.
type Mover struct {
	Keyword      string `json:"keyword"`
	CurrentRank  int    `json:"current_rank"`
	StartRank    *int   `json:"start_rank"`
	WeeklyChange int    `json:"weekly_change"`
	IsNew        bool   `json:"is_new"`
}

// Movers groups the biggest risers, fallers and newcomers.
type Movers struct {
	StartDate string  `json:"start_date,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	Days      int     `json:"days"`
	Gainers   []Mover `json:"gainers"`
	Losers    []Mover `json:"losers"`
	New       []Mover `json:"new"`
}

// WeeklyMovers compares the latest ranking with the first ranking of the window.
// Each list is capped at limit; limit <= 0 means uncapped.
func WeeklyMovers(first, latest []database.DailyKeyword, limit int) *Movers {
	start := ranks(first)
	m := &Movers{Gainers: []Mover{}, Losers: []Mover{}, New: []Mover{}}

	for _, k := range latest {
		mv := Mover{Keyword: k.Keyword, CurrentRank: k.Rank}
		r, ok := start[key(k)]
		if !ok {
			mv.IsNew = true
			m.New = append(m.New, mv)
			continue
		}
		r0 := r
		mv.StartRank = &r0
		mv.WeeklyChange = r - k.Rank
		switch {
		case mv.WeeklyChange > 0:
			m.Gainers = append(m.Gainers, mv)
		case mv.WeeklyChange < 0:
			m.Losers = append(m.Losers, mv)
		}
	}

	sort.SliceStable(m.Gainers, func(i, j int) bool { return m.Gainers[i].WeeklyChange > m.Gainers[j].WeeklyChange })
	sort.SliceStable(m.Losers, func(i, j int) bool { return m.Losers[i].WeeklyChange < m.Losers[j].WeeklyChange })

	m.Gainers = capped(m.Gainers, limit)
	m.Losers = capped(m.Losers, limit)
	m.New = capped(m.New, limit)
	return m
}

func capped(list []Mover, limit int) []Mover {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// Store is the read side of the keyword tables used by Service.
type Store interface {
	GetDailyKeywords(date string) ([]database.DailyKeyword, error)
	GetPreviousKeywordDate(date string) (string, error)
	GetKeywordDates(limit int) ([]string, error)
}

// Service answers trend queries from stored rankings.
type Service struct {
	store Store
}

// NewService creates a trend service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// DailyTrends is the ranking of one day with day-over-day movement.
type DailyTrends struct {
	Date         string         `json:"date"`
	PreviousDate string         `json:"previous_date,omitempty"`
	Keywords     []KeywordTrend `json:"keywords"`
}

// Daily returns the trends for date, or for the most recent processed day when
// date is empty. A day without a ranking yields an empty keyword list.
func (s *Service) Daily(ctx context.Context, date string) (*DailyTrends, error) {
	if date == "" {
		dates, err := s.store.GetKeywordDates(1)
		if err != nil {
			return nil, fmt.Errorf("loading latest day: %w", err)
		}
		if len(dates) == 0 {
			return &DailyTrends{Keywords: []KeywordTrend{}}, nil
		}
		date = dates[0]
	} else if _, err := database.ParseDate(date); err != nil {
		return nil, err
	}

	current, err := s.store.GetDailyKeywords(date)
	if err != nil {
		return nil, fmt.Errorf("loading ranking for %s: %w", date, err)
	}
	prevDate, err := s.store.GetPreviousKeywordDate(date)
	if err != nil {
		return nil, fmt.Errorf("finding day before %s: %w", date, err)
	}
	var previous []database.DailyKeyword
	if prevDate != "" {
		if previous, err = s.store.GetDailyKeywords(prevDate); err != nil {
			return nil, fmt.Errorf("loading ranking for %s: %w", prevDate, err)
		}
	}

	return &DailyTrends{
		Date:         date,
		PreviousDate: prevDate,
		Keywords:     DayOverDay(current, previous),
	}, nil
}

// Weekly compares the most recent processed day with the oldest day in a
// window of the latest processed days.
func (s *Service) Weekly(ctx context.Context, days, limit int) (*Movers, error) {
	if days <= 0 {
		days = 7
	}
	dates, err := s.store.GetKeywordDates(days)
	if err != nil {
		return nil, fmt.Errorf("loading processed days: %w", err)
	}
	if len(dates) == 0 {
		return &Movers{Gainers: []Mover{}, Losers: []Mover{}, New: []Mover{}}, nil
	}

	end, start := dates[0], dates[len(dates)-1]
	latest, err := s.store.GetDailyKeywords(end)
	if err != nil {
		return nil, fmt.Errorf("loading ranking for %s: %w", end, err)
	}
	first, err := s.store.GetDailyKeywords(start)
	if err != nil {
		return nil, fmt.Errorf("loading ranking for %s: %w", start, err)
	}

	m := WeeklyMovers(first, latest, limit)
	m.StartDate, m.EndDate, m.Days = start, end, len(dates)
	return m, nil
}
