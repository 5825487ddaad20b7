package database

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrActiveRunExists is returned when creating a run while another is running or paused.
var ErrActiveRunExists = errors.New("a sync run is already running or paused")

const runColumns = `id, start_max_item, target_end_item, total_items, last_fetched_item,
	items_fetched, status, started_at, completed_at, error_message`

// GetActiveRun returns the run in running or paused state, or nil if none.
func (db *DB) GetActiveRun() (*SyncRun, error) {
	return getActiveRun(db.conn)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getActiveRun(q queryRower) (*SyncRun, error) {
	row := q.QueryRow(
		"SELECT " + runColumns + " FROM sync_runs WHERE status IN ('running', 'paused') ORDER BY id DESC LIMIT 1",
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateRun persists a new running sync run with its cursor at startMaxItem.
// Returns ErrActiveRunExists if another run is running or paused.
func (db *DB) CreateRun(startMaxItem, targetEndItem int64) (*SyncRun, error) {
	if targetEndItem > startMaxItem {
		targetEndItem = startMaxItem
	}
	total := startMaxItem - targetEndItem

	var id int64
	err := db.withTx(func(tx *sql.Tx) error {
		active, err := getActiveRun(tx)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrActiveRunExists
		}

		result, err := tx.Exec(
			`INSERT INTO sync_runs
			(start_max_item, target_end_item, total_items, last_fetched_item, items_fetched, status)
			VALUES (?, ?, ?, ?, 0, ?)`,
			startMaxItem, targetEndItem, total, startMaxItem, RunStatusRunning,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrActiveRunExists
			}
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return db.GetRun(id)
}

// GetRun returns a sync run by ID.
func (db *DB) GetRun(id int64) (*SyncRun, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM sync_runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent sync runs, newest first.
func (db *DB) ListRuns(limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query("SELECT "+runColumns+" FROM sync_runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// TransitionRun moves a run to status `to` if its current status is one of `from`.
// Completed and failed transitions stamp completed_at. Returns whether a row changed.
func (db *DB) TransitionRun(id int64, to RunStatus, errorMessage *string, from ...RunStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{to, errorMessage}
	query := "UPDATE sync_runs SET status = ?, error_message = COALESCE(?, error_message)"
	if to == RunStatusCompleted || to == RunStatusFailed {
		query += ", completed_at = datetime('now')"
	}
	query += " WHERE id = ? AND status IN (" + placeholders(len(from)) + ")"
	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	result, err := db.conn.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ChunkCommit is the durable outcome of one ingestion chunk.
type ChunkCommit struct {
	RunID          int64
	ExpectedCursor int64 // cursor value the chunk was computed from
	NewCursor      int64
	Done           bool
	Users          []User
	Items          []Item
}

// ApplyChunk inserts a chunk's users and items and advances the run cursor in one
// transaction. The cursor update only applies while the run still sits at
// ExpectedCursor; otherwise nothing is committed and applied is false.
func (db *DB) ApplyChunk(c ChunkCommit) (inserted int, applied bool, err error) {
	err = db.withTx(func(tx *sql.Tx) error {
		if err := insertUsers(tx, c.Users); err != nil {
			return err
		}
		n, err := insertItems(tx, c.Items)
		if err != nil {
			return err
		}

		// Status is left alone unless the run finished, so a pause issued mid-chunk sticks.
		query := "UPDATE sync_runs SET last_fetched_item = ?, items_fetched = items_fetched + ?"
		if c.Done {
			query += ", status = 'completed', completed_at = datetime('now')"
		}
		query += " WHERE id = ? AND last_fetched_item = ? AND status IN ('running', 'paused')"

		result, err := tx.Exec(query, c.NewCursor, n, c.RunID, c.ExpectedCursor)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return errCursorMoved
		}
		inserted = n
		applied = true
		return nil
	})
	if errors.Is(err, errCursorMoved) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return inserted, applied, nil
}

var errCursorMoved = errors.New("cursor moved")

func scanRun(row scanner) (*SyncRun, error) {
	var r SyncRun
	var status string
	if err := row.Scan(&r.ID, &r.StartMaxItem, &r.TargetEndItem, &r.TotalItems, &r.LastFetchedItem,
		&r.ItemsFetched, &status, &r.StartedAt, &r.CompletedAt, &r.ErrorMessage); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
