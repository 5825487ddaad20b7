package database

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrVariantNesting is returned when a variant would also act as a parent, or vice versa.
	ErrVariantNesting = errors.New("variant overrides cannot be nested")
	// ErrVariantExists is returned when a variant stem is already mapped to a parent.
	ErrVariantExists = errors.New("variant stem is already mapped")
	// ErrInvalidAction is returned for a blacklist action other than block or allow.
	ErrInvalidAction = errors.New("invalid blacklist action")
)

// AddVariant maps a variant stem to a parent keyword.
func (db *DB) AddVariant(v KeywordVariant) (*KeywordVariant, error) {
	if v.VariantStem == "" || v.ParentStem == "" {
		return nil, fmt.Errorf("variant and parent stems are required")
	}
	if v.VariantStem == v.ParentStem {
		return nil, ErrVariantNesting
	}

	var id int64
	err := db.withTx(func(tx *sql.Tx) error {
		var n int
		// The new parent must not itself be a variant.
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM keyword_variants WHERE variant_stem = ?", v.ParentStem,
		).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrVariantNesting
		}
		// The new variant must not already be somebody's parent.
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM keyword_variants WHERE parent_stem = ?", v.VariantStem,
		).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrVariantNesting
		}

		result, err := tx.Exec(
			`INSERT INTO keyword_variants (variant_keyword, variant_stem, parent_keyword, parent_stem)
			VALUES (?, ?, ?, ?)`,
			v.VariantKeyword, v.VariantStem, v.ParentKeyword, v.ParentStem,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrVariantExists
			}
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	var out KeywordVariant
	err = db.conn.QueryRow(
		`SELECT id, variant_keyword, variant_stem, parent_keyword, parent_stem, created_at
		FROM keyword_variants WHERE id = ?`, id,
	).Scan(&out.ID, &out.VariantKeyword, &out.VariantStem, &out.ParentKeyword, &out.ParentStem, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveVariant deletes the mapping for a variant stem. Returns whether a row was removed.
func (db *DB) RemoveVariant(variantStem string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM keyword_variants WHERE variant_stem = ?", variantStem)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ListVariants returns every variant mapping ordered by parent then variant.
func (db *DB) ListVariants() ([]KeywordVariant, error) {
	rows, err := db.conn.Query(
		`SELECT id, variant_keyword, variant_stem, parent_keyword, parent_stem, created_at
		FROM keyword_variants ORDER BY parent_stem, variant_stem`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeywordVariant
	for rows.Next() {
		var v KeywordVariant
		if err := rows.Scan(&v.ID, &v.VariantKeyword, &v.VariantStem, &v.ParentKeyword,
			&v.ParentStem, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetBlacklistOverride records a block or allow action for a stem, replacing any previous one.
func (db *DB) SetBlacklistOverride(stem, action string) error {
	if action != ActionBlock && action != ActionAllow {
		return fmt.Errorf("%w %q", ErrInvalidAction, action)
	}
	_, err := db.conn.Exec(
		`INSERT INTO blacklist_overrides (stem, action) VALUES (?, ?)
		ON CONFLICT(stem) DO UPDATE SET action = excluded.action, created_at = datetime('now')`,
		stem, action,
	)
	return err
}

// RemoveBlacklistOverride deletes the override for a stem. Returns whether a row was removed.
func (db *DB) RemoveBlacklistOverride(stem string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM blacklist_overrides WHERE stem = ?", stem)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ListBlacklistOverrides returns every override ordered by stem.
func (db *DB) ListBlacklistOverrides() ([]BlacklistOverride, error) {
	rows, err := db.conn.Query(
		"SELECT id, stem, action, created_at FROM blacklist_overrides ORDER BY stem",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlacklistOverride
	for rows.Next() {
		var o BlacklistOverride
		if err := rows.Scan(&o.ID, &o.Stem, &o.Action, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
