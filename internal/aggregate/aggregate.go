// Package aggregate turns raw per-dimension tables into the dimensioned and
// whole-population time series.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

// Merge joins feed and message rows on (date, platform, source).
// In left mode the feed table is the left side.
func Merge(feed []dataset.FeedRow, messages []dataset.MessageRow, mode JoinMode) ([]dataset.DimensionedRow, JoinStats, error) {
	var stats JoinStats

	byKey := make(map[dataset.Key]dataset.MessageRow, len(messages))
	for _, m := range messages {
		if _, dup := byKey[m.Key]; dup {
			return nil, stats, fmt.Errorf("%w: messages %s", ErrDuplicateKey, m.Key)
		}
		byKey[m.Key] = m
	}

	seen := make(map[dataset.Key]struct{}, len(feed))
	out := make([]dataset.DimensionedRow, 0, len(feed))
	for _, f := range feed {
		if _, dup := seen[f.Key]; dup {
			return nil, stats, fmt.Errorf("%w: feed %s", ErrDuplicateKey, f.Key)
		}
		seen[f.Key] = struct{}{}

		m, ok := byKey[f.Key]
		if !ok {
			switch mode {
			case JoinStrict:
				return nil, stats, &JoinGapError{Join: "feed/messages", Side: "feed", Key: f.Key.String()}
			case JoinLeft:
				m = dataset.MessageRow{Key: f.Key}
			default:
				stats.LeftDropped++
				continue
			}
		} else {
			stats.Matched++
		}

		out = append(out, dataset.DimensionedRow{
			Key:             f.Key,
			DAU:             f.DAU,
			PostsViewed:     f.PostsViewed,
			ActionsPerUser:  f.ActionsPerUser,
			CTR:             f.CTR,
			MessagesSent:    m.MessagesSent,
			MessagingUsers:  m.MessagingUsers,
			MessagesPerUser: m.MessagesPerUser,
		})
	}

	for _, m := range messages {
		if _, ok := seen[m.Key]; ok {
			continue
		}
		if mode == JoinStrict {
			return nil, stats, &JoinGapError{Join: "feed/messages", Side: "messages", Key: m.Key.String()}
		}
		stats.RightDropped++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, stats, nil
}

type dayTotals struct {
	row   dataset.GlobalRow
	count int
}

// Global collapses the dimensioned table to one row per date and joins the
// cross-domain active user counts. Counts are summed; actions per user, CTR
// and messages per user are the arithmetic mean of the dimension values.
// In left mode the dimensioned table is the left side.
func Global(dim []dataset.DimensionedRow, active []dataset.ActiveRow, mode JoinMode) ([]dataset.GlobalRow, JoinStats, error) {
	var stats JoinStats

	days := make(map[time.Time]*dayTotals)
	for _, r := range dim {
		t, ok := days[r.Date]
		if !ok {
			t = &dayTotals{row: dataset.GlobalRow{Date: r.Date}}
			days[r.Date] = t
		}
		t.count++
		t.row.DAU += r.DAU
		t.row.PostsViewed += r.PostsViewed
		t.row.MessagesSent += r.MessagesSent
		t.row.MessagingUsers += r.MessagingUsers
		t.row.ActionsPerUser += r.ActionsPerUser
		t.row.CTR += r.CTR
		t.row.MessagesPerUser += r.MessagesPerUser
	}

	activeByDay := make(map[time.Time]int64, len(active))
	for _, a := range active {
		if _, dup := activeByDay[a.Date]; dup {
			return nil, stats, fmt.Errorf("%w: active users %s", ErrDuplicateKey, a.Date.Format(dataset.DateLayout))
		}
		activeByDay[a.Date] = a.ActiveUsers
	}

	order := make([]time.Time, 0, len(days))
	for day := range days {
		order = append(order, day)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make([]dataset.GlobalRow, 0, len(days))
	for _, day := range order {
		t := days[day]
		n := float64(t.count)
		row := t.row
		row.ActionsPerUser /= n
		row.CTR /= n
		row.MessagesPerUser /= n

		users, ok := activeByDay[day]
		if !ok {
			switch mode {
			case JoinStrict:
				return nil, stats, &JoinGapError{Join: "dimensions/active users", Side: "dimensions", Key: day.Format(dataset.DateLayout)}
			case JoinLeft:
			default:
				stats.LeftDropped++
				continue
			}
		} else {
			stats.Matched++
		}
		row.ActiveUsers = users
		out = append(out, row)
	}

	for _, a := range active {
		if _, ok := days[a.Date]; ok {
			continue
		}
		if mode == JoinStrict {
			return nil, stats, &JoinGapError{Join: "dimensions/active users", Side: "active users", Key: a.Date.Format(dataset.DateLayout)}
		}
		stats.RightDropped++
	}

	return out, stats, nil
}
