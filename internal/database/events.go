package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is how event timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02 15:04:05"

// InsertFeedAction stores a feed event.
func (db *DB) InsertFeedAction(a FeedAction) error {
	_, err := db.conn.Exec(
		`INSERT INTO feed_actions (user_id, post_id, action, time, os, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.PostID, a.Action, a.Time.UTC().Format(timeLayout), a.OS, a.Source,
	)
	return err
}

// InsertMessageAction stores a message event.
func (db *DB) InsertMessageAction(a MessageAction) error {
	_, err := db.conn.Exec(
		`INSERT INTO message_actions (user_id, receiver_id, time, os, source)
		VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.ReceiverID, a.Time.UTC().Format(timeLayout), a.OS, a.Source,
	)
	return err
}

// InsertFeedActions stores feed events in one transaction.
func (db *DB) InsertFeedActions(actions []FeedAction) error {
	return db.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO feed_actions (user_id, post_id, action, time, os, source) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range actions {
			if _, err := stmt.Exec(a.UserID, a.PostID, a.Action, a.Time.UTC().Format(timeLayout), a.OS, a.Source); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertMessageActions stores message events in one transaction.
func (db *DB) InsertMessageActions(actions []MessageAction) error {
	return db.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO message_actions (user_id, receiver_id, time, os, source) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range actions {
			if _, err := stmt.Exec(a.UserID, a.ReceiverID, a.Time.UTC().Format(timeLayout), a.OS, a.Source); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetStats returns event counts and the span of days holding events.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	counts := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM feed_actions", &s.FeedActions},
		{"SELECT COUNT(*) FROM message_actions", &s.MessageActions},
	}
	for _, q := range counts {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var first, last sql.NullString
	err := db.conn.QueryRow(`
		SELECT MIN(d), MAX(d) FROM (
			SELECT date(time) AS d FROM feed_actions
			UNION ALL
			SELECT date(time) AS d FROM message_actions
		)`).Scan(&first, &last)
	if err != nil {
		return nil, fmt.Errorf("reading event span: %w", err)
	}
	s.FirstDay = first.String
	s.LastDay = last.String
	return s, nil
}

func dayBounds(start, end time.Time) (string, string) {
	return start.Format(timeLayout), end.AddDate(0, 0, 1).Format(timeLayout)
}
