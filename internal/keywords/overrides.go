package keywords

import (
	"context"
	"fmt"

	"github.com/aparm539/nwHacks2026/internal/database"
)

// Overrides manages the manual grouping and blacklist tables. Every successful
// write invalidates the shared cache before returning.
type Overrides struct {
	db    *database.DB
	cache *OverrideCache
}

// NewOverridesService creates the override admin service.
func NewOverridesService(db *database.DB, cache *OverrideCache) *Overrides {
	return &Overrides{db: db, cache: cache}
}

// VariantInput describes a new variant mapping. Empty stems default to the
// normalised keyword.
type VariantInput struct {
	VariantKeyword string `json:"variant_keyword"`
	VariantStem    string `json:"variant_stem,omitempty"`
	ParentKeyword  string `json:"parent_keyword"`
	ParentStem     string `json:"parent_stem,omitempty"`
}

// AddVariant groups a variant under a parent keyword.
func (s *Overrides) AddVariant(ctx context.Context, in VariantInput) (*database.KeywordVariant, error) {
	v := database.KeywordVariant{
		VariantKeyword: normalize(in.VariantKeyword),
		VariantStem:    normalize(in.VariantStem),
		ParentKeyword:  normalize(in.ParentKeyword),
		ParentStem:     normalize(in.ParentStem),
	}
	if v.VariantKeyword == "" || v.ParentKeyword == "" {
		return nil, fmt.Errorf("variant and parent keywords are required")
	}
	if v.VariantStem == "" {
		v.VariantStem = v.VariantKeyword
	}
	if v.ParentStem == "" {
		v.ParentStem = v.ParentKeyword
	}

	out, err := s.db.AddVariant(v)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	return out, nil
}

// RemoveVariant deletes a variant mapping by stem.
func (s *Overrides) RemoveVariant(ctx context.Context, variantStem string) (bool, error) {
	removed, err := s.db.RemoveVariant(normalize(variantStem))
	if err != nil {
		return false, err
	}
	s.cache.Invalidate()
	return removed, nil
}

// ListVariants returns every variant mapping.
func (s *Overrides) ListVariants(ctx context.Context) ([]database.KeywordVariant, error) {
	return s.db.ListVariants()
}

// SetBlacklist blocks or re-allows a stem.
func (s *Overrides) SetBlacklist(ctx context.Context, stem, action string) error {
	stem = normalize(stem)
	if stem == "" {
		return fmt.Errorf("stem is required")
	}
	if err := s.db.SetBlacklistOverride(stem, action); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// RemoveBlacklist deletes the override for a stem, restoring its default state.
func (s *Overrides) RemoveBlacklist(ctx context.Context, stem string) (bool, error) {
	removed, err := s.db.RemoveBlacklistOverride(normalize(stem))
	if err != nil {
		return false, err
	}
	s.cache.Invalidate()
	return removed, nil
}

// BlacklistView lists user overrides alongside the effective blocked set.
type BlacklistView struct {
	Overrides []database.BlacklistOverride `json:"overrides"`
	Effective []string                     `json:"effective"`
}

// ListBlacklist returns the stored overrides and the resulting blocked stems.
func (s *Overrides) ListBlacklist(ctx context.Context) (*BlacklistView, error) {
	rules, err := s.db.ListBlacklistOverrides()
	if err != nil {
		return nil, err
	}
	set, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []database.BlacklistOverride{}
	}
	return &BlacklistView{Overrides: rules, Effective: set.Blacklist.Stems()}, nil
}
