package database

import "math"

// Item is a record from the remote feed (story, comment, job, poll, pollopt).
type Item struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	By          *string `json:"by,omitempty"`
	Time        int64   `json:"time"`
	Title       *string `json:"title,omitempty"`
	Text        *string `json:"text,omitempty"`
	URL         *string `json:"url,omitempty"`
	Score       int     `json:"score"`
	Descendants int     `json:"descendants"`
	Parent      *int64  `json:"parent,omitempty"`
	Deleted     bool    `json:"deleted"`
	Dead        bool    `json:"dead"`
	FetchedAt   *string `json:"fetched_at,omitempty"`
}

// User is an item author.
type User struct {
	ID      string  `json:"id"`
	Created int64   `json:"created"`
	Karma   int     `json:"karma"`
	About   *string `json:"about,omitempty"`
}

// Mention locates the record a keyword was last seen in.
type Mention struct {
	ItemID int64 `json:"item_id"`
	Time   int64 `json:"time"`
}

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Active reports whether the run still owns the single active slot.
func (s RunStatus) Active() bool {
	return s == RunStatusRunning || s == RunStatusPaused
}

// SyncRun is one backfill or catch-up walk from StartMaxItem down to TargetEndItem.
type SyncRun struct {
	ID              int64     `json:"id"`
	StartMaxItem    int64     `json:"start_max_item"`
	TargetEndItem   int64     `json:"target_end_item"`
	TotalItems      int64     `json:"total_items"`
	LastFetchedItem int64     `json:"last_fetched_item"`
	ItemsFetched    int64     `json:"items_fetched"`
	Status          RunStatus `json:"status"`
	StartedAt       *string   `json:"started_at,omitempty"`
	CompletedAt     *string   `json:"completed_at,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
}

// Progress returns the completed percentage derived from the persisted cursor.
// A run with nothing to fetch is 100% complete.
func (r *SyncRun) Progress() int {
	if r.TotalItems <= 0 {
		return 100
	}
	done := float64(r.StartMaxItem-r.LastFetchedItem) / float64(r.TotalItems) * 100
	p := int(math.Round(done))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// DailyKeyword is one ranked canonical keyword for a UTC day.
type DailyKeyword struct {
	ID           int64   `json:"id"`
	Date         string  `json:"date"`
	Keyword      string  `json:"keyword"`
	Stem         *string `json:"stem,omitempty"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
	VariantCount int     `json:"variant_count"`
	ItemCount    int     `json:"item_count"`
	CreatedAt    *string `json:"created_at,omitempty"`
}

// KeywordStat holds global, cross-day statistics for a canonical keyword.
type KeywordStat struct {
	ID                int64   `json:"id"`
	Keyword           string  `json:"keyword"`
	Stem              *string `json:"stem,omitempty"`
	LastItemTime      int64   `json:"last_item_time"`
	LastItemID        int64   `json:"last_item_id"`
	FirstSeenTime     int64   `json:"first_seen_time"`
	TotalDaysAppeared int     `json:"total_days_appeared"`
	UpdatedAt         *string `json:"updated_at,omitempty"`
}

// KeywordVariant forces a variant stem to group under a parent keyword.
type KeywordVariant struct {
	ID             int64   `json:"id"`
	VariantKeyword string  `json:"variant_keyword"`
	VariantStem    string  `json:"variant_stem"`
	ParentKeyword  string  `json:"parent_keyword"`
	ParentStem     string  `json:"parent_stem"`
	CreatedAt      *string `json:"created_at,omitempty"`
}

// Blacklist override actions.
const (
	ActionBlock = "block"
	ActionAllow = "allow"
)

// BlacklistOverride blocks or re-allows a keyword stem.
type BlacklistOverride struct {
	ID        int64   `json:"id"`
	Stem      string  `json:"stem"`
	Action    string  `json:"action"`
	CreatedAt *string `json:"created_at,omitempty"`
}

// ExtractionRun records one attempt to extract keywords for a day.
type ExtractionRun struct {
	ID           int64   `json:"id"`
	Date         string  `json:"date"`
	Mode         string  `json:"mode"`
	ItemCount    int     `json:"item_count"`
	KeywordCount int     `json:"keyword_count"`
	Status       string  `json:"status"` // "ok", "skipped" or "failed"
	ErrorMessage *string `json:"error_message,omitempty"`
	CreatedAt    *string `json:"created_at,omitempty"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalItems      int   `json:"total_items"`
	Stories         int   `json:"stories"`
	Comments        int   `json:"comments"`
	Users           int   `json:"users"`
	MaxItemID       int64 `json:"max_item_id"`
	SyncRuns        int   `json:"sync_runs"`
	DaysWithItems   int   `json:"days_with_items"`
	DaysExtracted   int   `json:"days_extracted"`
	TrackedKeywords int   `json:"tracked_keywords"`
	Variants        int   `json:"variants"`
	BlacklistRules  int   `json:"blacklist_rules"`
}
