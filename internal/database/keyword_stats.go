package database

import (
	"database/sql"
	"fmt"
)

const keywordStatColumns = `id, keyword, stem, last_item_time, last_item_id, first_seen_time,
	total_days_appeared, updated_at`

// GetKeywordStat returns the global stats row for a canonical keyword.
func (db *DB) GetKeywordStat(keyword string) (*KeywordStat, error) {
	row := db.conn.QueryRow("SELECT "+keywordStatColumns+" FROM keyword_stats WHERE keyword = ?", keyword)
	s, err := scanKeywordStat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SaveKeywordStat writes the merged stats row for a keyword, inserting it if
// absent, and marks date as counted for the keyword in the same transaction.
func (db *DB) SaveKeywordStat(s KeywordStat, date string) error {
	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO keyword_stats
			(keyword, stem, last_item_time, last_item_id, first_seen_time, total_days_appeared, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
			ON CONFLICT(keyword) DO UPDATE SET
				stem = COALESCE(excluded.stem, keyword_stats.stem),
				last_item_time = excluded.last_item_time,
				last_item_id = excluded.last_item_id,
				first_seen_time = excluded.first_seen_time,
				total_days_appeared = excluded.total_days_appeared,
				updated_at = excluded.updated_at`,
			s.Keyword, s.Stem, s.LastItemTime, s.LastItemID, s.FirstSeenTime, s.TotalDaysAppeared,
		)
		if err != nil {
			return fmt.Errorf("saving stats for %q: %w", s.Keyword, err)
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO keyword_days (keyword, date) VALUES (?, ?)", s.Keyword, date); err != nil {
			return fmt.Errorf("marking %s counted for %q: %w", date, s.Keyword, err)
		}
		return nil
	})
}

// GetTopKeywordStats returns keywords ordered by days appeared, then recency.
func (db *DB) GetTopKeywordStats(limit int) ([]KeywordStat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		"SELECT "+keywordStatColumns+` FROM keyword_stats
		ORDER BY total_days_appeared DESC, last_item_time DESC, keyword LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeywordStat
	for rows.Next() {
		s, err := scanKeywordStat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanKeywordStat(row scanner) (*KeywordStat, error) {
	var s KeywordStat
	if err := row.Scan(&s.ID, &s.Keyword, &s.Stem, &s.LastItemTime, &s.LastItemID,
		&s.FirstSeenTime, &s.TotalDaysAppeared, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
