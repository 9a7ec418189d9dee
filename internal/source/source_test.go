package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

type call struct {
	query string
	args  []any
}

// fakeQuerier fills destinations by type and records every call.
type fakeQuerier struct {
	mu     sync.Mutex
	calls  []call
	feed   []feedRecord
	msgs   []messageRecord
	active []activeRecord
	err    error
}

func (f *fakeQuerier) Select(_ context.Context, dest any, query string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{query: query, args: args})
	if f.err != nil {
		return f.err
	}
	switch d := dest.(type) {
	case *[]feedRecord:
		*d = f.feed
	case *[]messageRecord:
		*d = f.msgs
	case *[]activeRecord:
		*d = f.active
	default:
		return fmt.Errorf("unexpected destination %T", dest)
	}
	return nil
}

func testWindow() dataset.Window {
	return dataset.NewWindow(time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC), 7)
}

func TestClickHouseFeedActions(t *testing.T) {
	q := &fakeQuerier{feed: []feedRecord{
		{ReportDate: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), OS: "iOS", Source: "ads", DAU: 10, Posts: 40, APU: 3.2, CTR: 0.21},
		{ReportDate: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), OS: "Android", Source: "ads", DAU: 1, Posts: 1, APU: 1, CTR: math.Inf(1)},
	}}
	ch, err := NewClickHouse(q, "simulator.feed_actions", "simulator.message_actions")
	require.NoError(t, err)

	rows, err := ch.FeedActions(context.Background(), testWindow())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "iOS", rows[0].Platform)
	assert.Equal(t, int64(10), rows[0].DAU)
	assert.Equal(t, int64(40), rows[0].PostsViewed)
	assert.Equal(t, 0.21, rows[0].CTR)
	assert.Equal(t, 0.0, rows[1].CTR, "non-finite ratios become 0")

	require.Len(t, q.calls, 1)
	assert.Contains(t, q.calls[0].query, "FROM simulator.feed_actions")
	assert.Equal(t, []any{"2026-02-02", "2026-02-09"}, q.calls[0].args)
}

func TestClickHouseMessageAndActive(t *testing.T) {
	q := &fakeQuerier{
		msgs:   []messageRecord{{ReportDate: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), OS: "iOS", Source: "organic", Messages: 30, Users: 10, MPU: 3}},
		active: []activeRecord{{ReportDate: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), ActiveUsers: 7}},
	}
	ch, err := NewClickHouse(q, "feed_actions", "message_actions")
	require.NoError(t, err)

	msgs, err := ch.MessageActions(context.Background(), testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(30), msgs[0].MessagesSent)
	assert.Equal(t, int64(10), msgs[0].MessagingUsers)
	assert.Equal(t, 3.0, msgs[0].MessagesPerUser)

	active, err := ch.ActiveUsers(context.Background(), testWindow())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(7), active[0].ActiveUsers)

	last := q.calls[len(q.calls)-1]
	assert.Contains(t, last.query, "FROM feed_actions")
	assert.Contains(t, last.query, "FROM message_actions")
	assert.Len(t, last.args, 4)
}

func TestNewClickHouseRejectsBadTableNames(t *testing.T) {
	for _, name := range []string{"", "feed; DROP TABLE x", "a.b.c", "1table"} {
		_, err := NewClickHouse(&fakeQuerier{}, name, "message_actions")
		assert.Error(t, err, "table %q", name)
	}
}

type stubSource struct {
	feed    []dataset.FeedRow
	msgs    []dataset.MessageRow
	active  []dataset.ActiveRow
	failOn  string
	windows []dataset.Window
	mu      sync.Mutex
}

func (s *stubSource) record(w dataset.Window, name string) error {
	s.mu.Lock()
	s.windows = append(s.windows, w)
	s.mu.Unlock()
	if s.failOn == name {
		return errors.New("query engine unavailable")
	}
	return nil
}

func (s *stubSource) FeedActions(_ context.Context, w dataset.Window) ([]dataset.FeedRow, error) {
	return s.feed, s.record(w, "feed")
}

func (s *stubSource) MessageActions(_ context.Context, w dataset.Window) ([]dataset.MessageRow, error) {
	return s.msgs, s.record(w, "messages")
}

func (s *stubSource) ActiveUsers(_ context.Context, w dataset.Window) ([]dataset.ActiveRow, error) {
	return s.active, s.record(w, "active")
}

func TestExtractUsesOneWindow(t *testing.T) {
	src := &stubSource{
		feed:   []dataset.FeedRow{{DAU: 1}},
		msgs:   []dataset.MessageRow{{MessagesSent: 2}},
		active: []dataset.ActiveRow{{ActiveUsers: 3}},
	}
	w := testWindow()

	tables, err := Extract(context.Background(), src, w)
	require.NoError(t, err)
	assert.Len(t, tables.Feed, 1)
	assert.Len(t, tables.Messages, 1)
	assert.Len(t, tables.Active, 1)
	assert.Equal(t, w, tables.Window)

	require.Len(t, src.windows, 3)
	for _, got := range src.windows {
		assert.Equal(t, w, got)
	}
}

func TestExtractFailsAsAWhole(t *testing.T) {
	src := &stubSource{failOn: "messages"}

	tables, err := Extract(context.Background(), src, testWindow())
	assert.Nil(t, tables)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "message actions:"), err.Error())
}
