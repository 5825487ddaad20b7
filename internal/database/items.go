package database

import (
	"database/sql"
	"strings"
)

const itemColumns = `id, type, by, time, title, text, url, score, descendants, parent, deleted, dead, fetched_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertItems inserts items, ignoring IDs already stored. Returns the number of new rows.
func (db *DB) InsertItems(items []Item) (int, error) {
	var inserted int
	err := db.withTx(func(tx *sql.Tx) error {
		n, err := insertItems(tx, items)
		inserted = n
		return err
	})
	return inserted, err
}

func insertItems(ex execer, items []Item) (int, error) {
	inserted := 0
	for _, it := range items {
		result, err := ex.Exec(
			`INSERT OR IGNORE INTO items
			(id, type, by, time, title, text, url, score, descendants, parent, deleted, dead)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.Type, it.By, it.Time, it.Title, it.Text, it.URL, it.Score,
			it.Descendants, it.Parent, boolInt(it.Deleted), boolInt(it.Dead),
		)
		if err != nil {
			return inserted, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

// InsertUsers inserts users, ignoring IDs already stored.
func (db *DB) InsertUsers(users []User) error {
	return db.withTx(func(tx *sql.Tx) error {
		return insertUsers(tx, users)
	})
}

func insertUsers(ex execer, users []User) error {
	for _, u := range users {
		if _, err := ex.Exec(
			`INSERT OR IGNORE INTO users (id, created, karma, about) VALUES (?, ?, ?, ?)`,
			u.ID, u.Created, u.Karma, u.About,
		); err != nil {
			return err
		}
	}
	return nil
}

// MissingUserIDs returns the subset of ids that have no users row, preserving order.
func (db *DB) MissingUserIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.conn.Query("SELECT id FROM users WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// MaxItemID returns the highest stored item ID, or 0 when no items exist.
func (db *DB) MaxItemID() (int64, error) {
	var id sql.NullInt64
	if err := db.conn.QueryRow("SELECT MAX(id) FROM items").Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// GetItem returns a single item by ID.
func (db *DB) GetItem(id int64) (*Item, error) {
	row := db.conn.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// GetUser returns a single user by ID.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	var created, karma sql.NullInt64
	err := db.conn.QueryRow("SELECT id, created, karma, about FROM users WHERE id = ?", id).
		Scan(&u.ID, &created, &karma, &u.About)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Created = created.Int64
	u.Karma = int(karma.Int64)
	return &u, nil
}

// GetItemsForDay returns the items created on a UTC calendar day, oldest first.
func (db *DB) GetItemsForDay(date string) ([]Item, error) {
	start, end, err := DayBounds(date)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(
		"SELECT "+itemColumns+" FROM items WHERE time >= ? AND time < ? ORDER BY time, id",
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetItemDates returns every UTC day that has at least one item, oldest first.
func (db *DB) GetItemDates() ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT date(time, 'unixepoch') AS d FROM items ORDER BY d",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// LatestMention returns the most recent item across the whole store whose title or
// text contains keyword, case-insensitively. Returns nil when nothing matches.
func (db *DB) LatestMention(keyword string) (*Mention, error) {
	needle := strings.ToLower(keyword)
	row := db.conn.QueryRow(
		`SELECT id, time FROM items
		WHERE instr(casefold(title), ?) > 0 OR instr(casefold(text), ?) > 0
		ORDER BY time DESC, id DESC LIMIT 1`,
		needle, needle,
	)
	var m Mention
	if err := row.Scan(&m.ItemID, &m.Time); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// LatestItemForDay returns the newest item of a UTC day, or nil when the day is empty.
func (db *DB) LatestItemForDay(date string) (*Mention, error) {
	start, end, err := DayBounds(date)
	if err != nil {
		return nil, err
	}
	var m Mention
	err = db.conn.QueryRow(
		"SELECT id, time FROM items WHERE time >= ? AND time < ? ORDER BY time DESC, id DESC LIMIT 1",
		start, end,
	).Scan(&m.ItemID, &m.Time)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*Item, error) {
	var it Item
	var by, title, text, url, fetchedAt sql.NullString
	var score, descendants, parent sql.NullInt64
	var deleted, dead sql.NullInt64
	if err := row.Scan(&it.ID, &it.Type, &by, &it.Time, &title, &text, &url, &score,
		&descendants, &parent, &deleted, &dead, &fetchedAt); err != nil {
		return nil, err
	}
	it.By = nullString(by)
	it.Title = nullString(title)
	it.Text = nullString(text)
	it.URL = nullString(url)
	it.FetchedAt = nullString(fetchedAt)
	it.Score = int(score.Int64)
	it.Descendants = int(descendants.Int64)
	if parent.Valid {
		p := parent.Int64
		it.Parent = &p
	}
	it.Deleted = deleted.Int64 != 0
	it.Dead = dead.Int64 != 0
	return &it, nil
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
