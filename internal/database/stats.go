package database

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		query string
		dest  any
	}{
		{"SELECT COUNT(*) FROM items", &s.TotalItems},
		{"SELECT COUNT(*) FROM items WHERE type = 'story'", &s.Stories},
		{"SELECT COUNT(*) FROM items WHERE type = 'comment'", &s.Comments},
		{"SELECT COUNT(*) FROM users", &s.Users},
		{"SELECT COALESCE(MAX(id), 0) FROM items", &s.MaxItemID},
		{"SELECT COUNT(*) FROM sync_runs", &s.SyncRuns},
		{"SELECT COUNT(DISTINCT date(time, 'unixepoch')) FROM items", &s.DaysWithItems},
		{"SELECT COUNT(DISTINCT date) FROM daily_keywords", &s.DaysExtracted},
		{"SELECT COUNT(*) FROM keyword_stats", &s.TrackedKeywords},
		{"SELECT COUNT(*) FROM keyword_variants", &s.Variants},
		{"SELECT COUNT(*) FROM blacklist_overrides", &s.BlacklistRules},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
