package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

const feedQuery = `
SELECT
    toDate(time) AS report_date,
    os,
    source,
    uniqExact(user_id) AS dau,
    uniqExact(post_id) AS posts,
    count(user_id) / uniqExact(user_id) AS apu,
    countIf(action = 'like') / countIf(action = 'view') AS ctr
FROM %s
WHERE toDate(time) BETWEEN toDate(?) AND toDate(?)
GROUP BY report_date, os, source
ORDER BY report_date, os, source`

const messageQuery = `
SELECT
    toDate(time) AS report_date,
    os,
    source,
    count(user_id) AS messages,
    uniqExact(user_id) AS users,
    count(user_id) / uniqExact(user_id) AS mpu
FROM %s
WHERE toDate(time) BETWEEN toDate(?) AND toDate(?)
GROUP BY report_date, os, source
ORDER BY report_date, os, source`

const activeQuery = `
SELECT report_date, count() AS active_users
FROM (
    SELECT DISTINCT toDate(time) AS report_date, user_id
    FROM %s
    WHERE toDate(time) BETWEEN toDate(?) AND toDate(?)
) AS f
INNER JOIN (
    SELECT DISTINCT toDate(time) AS report_date, user_id
    FROM %s
    WHERE toDate(time) BETWEEN toDate(?) AND toDate(?)
) AS m USING (report_date, user_id)
GROUP BY report_date
ORDER BY report_date`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Querier is the subset of driver.Conn used to run selects.
type Querier interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
}

type feedRecord struct {
	ReportDate time.Time `ch:"report_date"`
	OS         string    `ch:"os"`
	Source     string    `ch:"source"`
	DAU        uint64    `ch:"dau"`
	Posts      uint64    `ch:"posts"`
	APU        float64   `ch:"apu"`
	CTR        float64   `ch:"ctr"`
}

type messageRecord struct {
	ReportDate time.Time `ch:"report_date"`
	OS         string    `ch:"os"`
	Source     string    `ch:"source"`
	Messages   uint64    `ch:"messages"`
	Users      uint64    `ch:"users"`
	MPU        float64   `ch:"mpu"`
}

type activeRecord struct {
	ReportDate  time.Time `ch:"report_date"`
	ActiveUsers uint64    `ch:"active_users"`
}

// ClickHouseConfig describes the analytical database holding raw events.
type ClickHouseConfig struct {
	Addr         string
	Protocol     string // "native" or "http"
	Secure       bool
	Database     string
	Username     string
	Password     string
	FeedTable    string
	MessageTable string
	DialTimeout  time.Duration
}

// ClickHouse reads the raw tables from ClickHouse.
type ClickHouse struct {
	q            Querier
	conn         driver.Conn
	feedTable    string
	messageTable string
}

// NewClickHouse wraps an existing connection.
func NewClickHouse(q Querier, feedTable, messageTable string) (*ClickHouse, error) {
	for _, t := range []string{feedTable, messageTable} {
		if !tableName.MatchString(t) {
			return nil, fmt.Errorf("invalid table name %q", t)
		}
	}
	return &ClickHouse{q: q, feedTable: feedTable, messageTable: messageTable}, nil
}

// OpenClickHouse connects and pings the server.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouse, error) {
	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	}
	if strings.EqualFold(cfg.Protocol, "http") {
		opts.Protocol = clickhouse.HTTP
	}
	if cfg.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging clickhouse at %s: %w", cfg.Addr, err)
	}

	ch, err := NewClickHouse(conn, cfg.FeedTable, cfg.MessageTable)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ch.conn = conn
	return ch, nil
}

// Close closes the underlying connection, if this source opened it.
func (c *ClickHouse) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// FeedActions returns per-day, per-slice feed KPIs for the window.
func (c *ClickHouse) FeedActions(ctx context.Context, w dataset.Window) ([]dataset.FeedRow, error) {
	var records []feedRecord
	query := fmt.Sprintf(feedQuery, c.feedTable)
	if err := c.q.Select(ctx, &records, query, bounds(w)...); err != nil {
		return nil, err
	}

	rows := make([]dataset.FeedRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, dataset.FeedRow{
			Key:            dataset.Key{Date: dataset.Day(r.ReportDate), Platform: r.OS, Source: r.Source},
			DAU:            int64(r.DAU),
			PostsViewed:    int64(r.Posts),
			ActionsPerUser: finite(r.APU),
			CTR:            finite(r.CTR),
		})
	}
	return rows, nil
}

// MessageActions returns per-day, per-slice messenger KPIs for the window.
func (c *ClickHouse) MessageActions(ctx context.Context, w dataset.Window) ([]dataset.MessageRow, error) {
	var records []messageRecord
	query := fmt.Sprintf(messageQuery, c.messageTable)
	if err := c.q.Select(ctx, &records, query, bounds(w)...); err != nil {
		return nil, err
	}

	rows := make([]dataset.MessageRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, dataset.MessageRow{
			Key:             dataset.Key{Date: dataset.Day(r.ReportDate), Platform: r.OS, Source: r.Source},
			MessagesSent:    int64(r.Messages),
			MessagingUsers:  int64(r.Users),
			MessagesPerUser: finite(r.MPU),
		})
	}
	return rows, nil
}

// ActiveUsers counts users with both a feed action and a sent message, per day.
func (c *ClickHouse) ActiveUsers(ctx context.Context, w dataset.Window) ([]dataset.ActiveRow, error) {
	var records []activeRecord
	query := fmt.Sprintf(activeQuery, c.feedTable, c.messageTable)
	args := append(bounds(w), bounds(w)...)
	if err := c.q.Select(ctx, &records, query, args...); err != nil {
		return nil, err
	}

	rows := make([]dataset.ActiveRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, dataset.ActiveRow{Date: dataset.Day(r.ReportDate), ActiveUsers: int64(r.ActiveUsers)})
	}
	return rows, nil
}

func bounds(w dataset.Window) []any {
	return []any{w.Start.Format(dataset.DateLayout), w.End.Format(dataset.DateLayout)}
}

// finite maps the NaN/Inf ClickHouse returns for x/0 to 0.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
