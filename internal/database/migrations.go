package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "event tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS feed_actions (
    user_id INTEGER NOT NULL,
    post_id INTEGER NOT NULL,
    action TEXT NOT NULL CHECK(action IN ('view', 'like')),
    time TEXT NOT NULL,
    os TEXT NOT NULL,
    source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS message_actions (
    user_id INTEGER NOT NULL,
    receiver_id INTEGER NOT NULL,
    time TEXT NOT NULL,
    os TEXT NOT NULL,
    source TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "time indexes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_feed_actions_time ON feed_actions(time);
CREATE INDEX IF NOT EXISTS idx_feed_actions_user ON feed_actions(user_id, time);
CREATE INDEX IF NOT EXISTS idx_message_actions_time ON message_actions(time);
CREATE INDEX IF NOT EXISTS idx_message_actions_user ON message_actions(user_id, time);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
