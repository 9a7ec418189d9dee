package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// eventTables are the tables a warehouse must end up with.
var eventTables = []string{"feed_actions", "message_actions"}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// existingEventTables lists which event tables are already present.
func existingEventTables(conn *sql.DB) ([]string, error) {
	var found []string
	for _, name := range eventTables {
		var n int
		err := conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("checking for table %s: %w", name, err)
		}
		if n > 0 {
			found = append(found, name)
		}
	}
	return found, nil
}

// migrate brings the schema to latestVersion, tracked in PRAGMA user_version.
// Every migration is idempotent DDL, so a dump loaded with the sqlite3 shell
// (tables present, user_version 0) is adopted by running them all: missing
// tables are created and indexes are added over the imported rows.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	if current == 0 {
		found, err := existingEventTables(conn)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			zap.S().Infof("adopting unversioned event tables %v", found)
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	zap.S().Infof("applying migration %d: %s", m.Version, m.Description)

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

	// modernc/sqlite does not apply user_version inside a transaction.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
