package database

import (
	"database/sql"
	"fmt"
	"log"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the schema up to the latest version.
func migrate(conn *sql.DB) error {
	return migrateTo(conn, latestVersion())
}

// migrateTo applies every pending migration up to and including target.
func migrateTo(conn *sql.DB, target int) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current || m.Version > target {
			continue
		}
		log.Printf("applying migration %d: %s", m.Version, m.Description)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// applyMigration runs one step in its own transaction, then records its
// version. modernc/sqlite does not persist user_version set inside the
// transaction; every step is idempotent DDL, so a crash in between re-runs it.
func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
