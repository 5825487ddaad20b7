// Package keywords groups scored phrases into canonical keywords and keeps
// their cross-day statistics.
package keywords

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aparm539/nwHacks2026/internal/oracle"
)

// Group is one canonical keyword built from one or more raw phrases.
type Group struct {
	Keyword  string   `json:"keyword"`
	Stem     string   `json:"stem"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`
	Variants []string `json:"variants"`
}

// VariantCount is the number of raw phrases merged into the group.
func (g Group) VariantCount() int {
	return len(g.Variants)
}

type bucket struct {
	key       string
	canonical string
	pinned    bool // canonical comes from a parent override
	sum       float64
	variants  []string
}

// Aggregate groups phrases by manual parent override, else by stem, drops
// blacklisted groups, and ranks groups by mean score ascending. Ties keep the
// order in which groups were first seen. At most topN groups are returned.
func Aggregate(phrases []oracle.Phrase, o *OverrideSet, topN int) []Group {
	if o == nil {
		o = NewOverrideSet(nil, nil)
	}

	buckets := make(map[string]*bucket)
	var order []*bucket

	for _, p := range phrases {
		surface := strings.Join(strings.Fields(p.Keyword), " ")
		if surface == "" {
			continue
		}
		key := normalize(p.GroupStem())
		if parent, ok := o.parentStem(key, surface); ok {
			key = parent
		}
		if o.blocked(key, surface) {
			continue
		}

		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key, canonical: surface}
			if parent, ok := o.Parents[key]; ok {
				b.canonical = parent
				b.pinned = true
			}
			buckets[key] = b
			order = append(order, b)
		} else if !b.pinned && utf8.RuneCountInString(surface) < utf8.RuneCountInString(b.canonical) {
			b.canonical = surface
		}
		b.sum += p.Score
		b.variants = append(b.variants, surface)
	}

	groups := make([]Group, 0, len(order))
	for _, b := range order {
		groups = append(groups, Group{
			Keyword:  b.canonical,
			Stem:     b.key,
			Score:    b.sum / float64(len(b.variants)),
			Variants: b.variants,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Score < groups[j].Score
	})
	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}
	for i := range groups {
		groups[i].Rank = i + 1
	}
	return groups
}

// parentStem finds a manual mapping by stem, then by lowercased surface form.
func (o *OverrideSet) parentStem(stem, surface string) (string, bool) {
	if v, ok := o.Variants[stem]; ok {
		return normalize(v.ParentStem), true
	}
	if v, ok := o.Variants[normalize(surface)]; ok {
		return normalize(v.ParentStem), true
	}
	return "", false
}

// blocked checks the group key, and the surface form since service stems are
// often truncated ("peopl") while blacklist entries are plain words.
func (o *OverrideSet) blocked(key, surface string) bool {
	return o.Blacklist.Contains(key) || o.Blacklist.Contains(surface)
}
