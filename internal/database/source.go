package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

// The three report aggregations in SQLite SQL. Bounds are [start, end+1day).

const feedQuery = `
SELECT
    date(time) AS report_date,
    os,
    source,
    COUNT(DISTINCT user_id),
    COUNT(DISTINCT post_id),
    CAST(COUNT(user_id) AS REAL) / COUNT(DISTINCT user_id),
    CAST(SUM(action = 'like') AS REAL) / NULLIF(SUM(action = 'view'), 0)
FROM feed_actions
WHERE time >= ? AND time < ?
GROUP BY report_date, os, source
ORDER BY report_date, os, source`

const messageQuery = `
SELECT
    date(time) AS report_date,
    os,
    source,
    COUNT(user_id),
    COUNT(DISTINCT user_id),
    CAST(COUNT(user_id) AS REAL) / COUNT(DISTINCT user_id)
FROM message_actions
WHERE time >= ? AND time < ?
GROUP BY report_date, os, source
ORDER BY report_date, os, source`

const activeQuery = `
SELECT f.report_date, COUNT(*)
FROM (
    SELECT DISTINCT date(time) AS report_date, user_id
    FROM feed_actions
    WHERE time >= ? AND time < ?
) AS f
JOIN (
    SELECT DISTINCT date(time) AS report_date, user_id
    FROM message_actions
    WHERE time >= ? AND time < ?
) AS m ON f.report_date = m.report_date AND f.user_id = m.user_id
GROUP BY f.report_date
ORDER BY f.report_date`

// FeedActions aggregates feed events per (day, os, source).
func (db *DB) FeedActions(ctx context.Context, w dataset.Window) ([]dataset.FeedRow, error) {
	from, to := dayBounds(w.Start, w.End)
	rows, err := db.conn.QueryContext(ctx, feedQuery, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.FeedRow
	for rows.Next() {
		var (
			r   dataset.FeedRow
			day string
			ctr sql.NullFloat64
		)
		if err := rows.Scan(&day, &r.Platform, &r.Source, &r.DAU, &r.PostsViewed, &r.ActionsPerUser, &ctr); err != nil {
			return nil, err
		}
		if r.Date, err = dataset.ParseDay(day); err != nil {
			return nil, fmt.Errorf("feed_actions: %w", err)
		}
		r.CTR = ctr.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

// MessageActions aggregates message events per (day, os, source).
func (db *DB) MessageActions(ctx context.Context, w dataset.Window) ([]dataset.MessageRow, error) {
	from, to := dayBounds(w.Start, w.End)
	rows, err := db.conn.QueryContext(ctx, messageQuery, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.MessageRow
	for rows.Next() {
		var (
			r   dataset.MessageRow
			day string
		)
		if err := rows.Scan(&day, &r.Platform, &r.Source, &r.MessagesSent, &r.MessagingUsers, &r.MessagesPerUser); err != nil {
			return nil, err
		}
		if r.Date, err = dataset.ParseDay(day); err != nil {
			return nil, fmt.Errorf("message_actions: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ActiveUsers counts, per day, users with both a feed action and a sent
// message on that day.
func (db *DB) ActiveUsers(ctx context.Context, w dataset.Window) ([]dataset.ActiveRow, error) {
	from, to := dayBounds(w.Start, w.End)
	rows, err := db.conn.QueryContext(ctx, activeQuery, from, to, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.ActiveRow
	for rows.Next() {
		var (
			r   dataset.ActiveRow
			day string
		)
		if err := rows.Scan(&day, &r.ActiveUsers); err != nil {
			return nil, err
		}
		if r.Date, err = dataset.ParseDay(day); err != nil {
			return nil, fmt.Errorf("active users: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
