package database

import (
	"database/sql"
)

const dailyKeywordColumns = `id, date, keyword, stem, score, rank, variant_count, item_count, created_at`

// ReplaceDailyKeywords replaces the full ranked set for a day.
func (db *DB) ReplaceDailyKeywords(date string, keywords []DailyKeyword) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM daily_keywords WHERE date = ?", date); err != nil {
			return err
		}
		for _, k := range keywords {
			if _, err := tx.Exec(
				`INSERT INTO daily_keywords (date, keyword, stem, score, rank, variant_count, item_count)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				date, k.Keyword, k.Stem, k.Score, k.Rank, k.VariantCount, k.ItemCount,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDailyKeywords returns a day's ranked keywords, best rank first.
func (db *DB) GetDailyKeywords(date string) ([]DailyKeyword, error) {
	rows, err := db.conn.Query(
		"SELECT "+dailyKeywordColumns+" FROM daily_keywords WHERE date = ? ORDER BY rank, keyword",
		date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyKeyword
	for rows.Next() {
		var k DailyKeyword
		if err := rows.Scan(&k.ID, &k.Date, &k.Keyword, &k.Stem, &k.Score, &k.Rank,
			&k.VariantCount, &k.ItemCount, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetCountedKeywords returns the keywords whose stats already count the day.
// Unlike the stored ranking, these marks survive a re-extraction of the day.
func (db *DB) GetCountedKeywords(date string) (map[string]bool, error) {
	rows, err := db.conn.Query("SELECT keyword FROM keyword_days WHERE date = ?", date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keywords, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
	}
	return set, nil
}

// GetKeywordDates returns the most recent days with stored rankings, newest first.
// A limit <= 0 returns every day.
func (db *DB) GetKeywordDates(limit int) ([]string, error) {
	query := "SELECT DISTINCT date FROM daily_keywords ORDER BY date DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GetPreviousKeywordDate returns the latest day before date that has rankings.
// Returns "" when there is none.
func (db *DB) GetPreviousKeywordDate(date string) (string, error) {
	var prev sql.NullString
	err := db.conn.QueryRow(
		"SELECT MAX(date) FROM daily_keywords WHERE date < ?", date,
	).Scan(&prev)
	if err != nil {
		return "", err
	}
	return prev.String, nil
}

// GetProcessedDates returns the days that already have a successful extraction.
func (db *DB) GetProcessedDates() (map[string]bool, error) {
	rows, err := db.conn.Query(
		`SELECT DISTINCT date FROM extraction_runs WHERE status = 'ok'
		UNION SELECT DISTINCT date FROM daily_keywords`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dates, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set, nil
}

// RecordExtraction logs one extraction attempt for a day.
func (db *DB) RecordExtraction(run ExtractionRun) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO extraction_runs (date, mode, item_count, keyword_count, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.Date, run.Mode, run.ItemCount, run.KeywordCount, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetExtractionRuns returns recent extraction attempts, newest first.
func (db *DB) GetExtractionRuns(limit int) ([]ExtractionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, date, mode, item_count, keyword_count, status, error_message, created_at
		FROM extraction_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExtractionRun
	for rows.Next() {
		var r ExtractionRun
		if err := rows.Scan(&r.ID, &r.Date, &r.Mode, &r.ItemCount, &r.KeywordCount,
			&r.Status, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
