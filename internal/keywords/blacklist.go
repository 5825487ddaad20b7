package keywords

import (
	"sort"
	"strings"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// DefaultBlacklist holds stems that show up every day on the feed and carry no trend signal.
var DefaultBlacklist = []string{
	"http", "https", "www", "com", "html", "quot", "amp",
	"people", "thing", "things", "time", "year", "years", "day", "days",
	"lot", "way", "work", "good", "great", "make", "made", "pretty",
	"yeah", "yes", "sure", "point", "question", "problem", "idea",
	"article", "comment", "comments", "post", "link", "site", "page",
	"hn", "hacker news", "show hn", "ask hn", "tell hn", "launch hn",
}

// Blacklist is the set of stems excluded from keyword output.
type Blacklist struct {
	stems map[string]bool
}

// NewBlacklist builds defaults ∪ extras ∪ block overrides, minus allow overrides.
func NewBlacklist(defaults, extras []string, overrides []database.BlacklistOverride) *Blacklist {
	b := &Blacklist{stems: make(map[string]bool, len(defaults)+len(extras))}
	for _, s := range defaults {
		b.stems[normalize(s)] = true
	}
	for _, s := range extras {
		b.stems[normalize(s)] = true
	}
	for _, o := range overrides {
		if o.Action == database.ActionBlock {
			b.stems[normalize(o.Stem)] = true
		}
	}
	for _, o := range overrides {
		if o.Action == database.ActionAllow {
			delete(b.stems, normalize(o.Stem))
		}
	}
	return b
}

// Contains reports whether stem is blocked.
func (b *Blacklist) Contains(stem string) bool {
	if b == nil {
		return false
	}
	return b.stems[normalize(stem)]
}

// Stems returns the blocked stems in sorted order.
func (b *Blacklist) Stems() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.stems))
	for s := range b.stems {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
