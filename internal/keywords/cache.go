package keywords

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// OverrideSet is a point-in-time view of the manual grouping and blacklist tables.
type OverrideSet struct {
	// Variants maps a variant stem to its parent mapping.
	Variants map[string]database.KeywordVariant
	// Parents maps a parent stem to its display keyword.
	Parents   map[string]string
	Blacklist *Blacklist
}

// NewOverrideSet indexes variant rows and pairs them with a blacklist.
func NewOverrideSet(variants []database.KeywordVariant, blacklist *Blacklist) *OverrideSet {
	o := &OverrideSet{
		Variants:  make(map[string]database.KeywordVariant, len(variants)),
		Parents:   make(map[string]string),
		Blacklist: blacklist,
	}
	for _, v := range variants {
		o.Variants[normalize(v.VariantStem)] = v
		o.Parents[normalize(v.ParentStem)] = v.ParentKeyword
	}
	return o
}

// Loader reads the current overrides from storage.
type Loader func(ctx context.Context) (*OverrideSet, error)

// DBLoader loads overrides from db, layering them over the default and configured blacklist.
func DBLoader(db *database.DB, extraBlacklist []string) Loader {
	return func(ctx context.Context) (*OverrideSet, error) {
		variants, err := db.ListVariants()
		if err != nil {
			return nil, fmt.Errorf("loading variants: %w", err)
		}
		rules, err := db.ListBlacklistOverrides()
		if err != nil {
			return nil, fmt.Errorf("loading blacklist overrides: %w", err)
		}
		return NewOverrideSet(variants, NewBlacklist(DefaultBlacklist, extraBlacklist, rules)), nil
	}
}

// OverrideCache serves overrides from memory for up to ttl. Writers must call
// Invalidate after changing the underlying tables.
type OverrideCache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cached   *OverrideSet
	loadedAt time.Time
}

// NewOverrideCache creates a cache. A nil now uses time.Now.
func NewOverrideCache(load Loader, ttl time.Duration, now func() time.Time) *OverrideCache {
	if now == nil {
		now = time.Now
	}
	return &OverrideCache{load: load, ttl: ttl, now: now}
}

// Get returns the cached overrides, reloading when empty or older than ttl.
func (c *OverrideCache) Get(ctx context.Context) (*OverrideSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.cached, nil
	}
	o, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = o
	c.loadedAt = c.now()
	return o, nil
}

// Invalidate drops the cached overrides so the next Get reloads.
func (c *OverrideCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
