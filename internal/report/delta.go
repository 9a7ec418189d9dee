// Package report compares the latest day of the global table with the day
// before it and formats the daily summary.
package report

import (
	"math"
	"time"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

// KPI names, in report order.
const (
	KPIActiveUsers     = "active_users"
	KPIDAU             = "dau"
	KPIPostsViewed     = "posts_viewed"
	KPIActionsPerUser  = "actions_per_user"
	KPICTR             = "ctr"
	KPIMessagesSent    = "messages_sent"
	KPIMessagingUsers  = "messaging_users"
	KPIMessagesPerUser = "messages_per_user"
)

// KPI is one tracked value on the current and previous day.
type KPI struct {
	Name     string
	Current  float64
	Previous float64
	Change   float64 // percent, rounded to 2 decimals
}

// Delta is the day-over-day snapshot behind the text report.
type Delta struct {
	Date         time.Time
	PreviousDate time.Time

	ActiveUsers     KPI
	DAU             KPI
	PostsViewed     KPI
	ActionsPerUser  KPI
	CTR             KPI
	MessagesSent    KPI
	MessagingUsers  KPI
	MessagesPerUser KPI
}

// KPIs returns the tracked values in report order.
func (d *Delta) KPIs() []KPI {
	return []KPI{
		d.ActiveUsers, d.DAU, d.PostsViewed, d.ActionsPerUser,
		d.CTR, d.MessagesSent, d.MessagingUsers, d.MessagesPerUser,
	}
}

// Compute builds the Delta for the latest date in global against exactly one
// day earlier. Row order does not matter.
func Compute(global []dataset.GlobalRow) (*Delta, error) {
	if len(global) == 0 {
		return nil, ErrEmptyTable
	}

	cur := global[0]
	for _, r := range global[1:] {
		if r.Date.After(cur.Date) {
			cur = r
		}
	}

	prevDate := cur.Date.AddDate(0, 0, -1)
	var prev *dataset.GlobalRow
	for i := range global {
		if global[i].Date.Equal(prevDate) {
			prev = &global[i]
			break
		}
	}
	if prev == nil {
		return nil, &MissingPreviousDayError{Current: cur.Date, Previous: prevDate}
	}

	d := &Delta{Date: cur.Date, PreviousDate: prevDate}
	c := calc{date: prevDate}
	d.ActiveUsers = c.kpi(KPIActiveUsers, float64(cur.ActiveUsers), float64(prev.ActiveUsers))
	d.DAU = c.kpi(KPIDAU, float64(cur.DAU), float64(prev.DAU))
	d.PostsViewed = c.kpi(KPIPostsViewed, float64(cur.PostsViewed), float64(prev.PostsViewed))
	d.ActionsPerUser = c.kpi(KPIActionsPerUser, round2(cur.ActionsPerUser), round2(prev.ActionsPerUser))
	d.CTR = c.kpi(KPICTR, round2(cur.CTR), round2(prev.CTR))
	d.MessagesSent = c.kpi(KPIMessagesSent, float64(cur.MessagesSent), float64(prev.MessagesSent))
	d.MessagingUsers = c.kpi(KPIMessagingUsers, float64(cur.MessagingUsers), float64(prev.MessagingUsers))
	d.MessagesPerUser = c.kpi(KPIMessagesPerUser, cur.MessagesPerUser, prev.MessagesPerUser)
	if c.err != nil {
		return nil, c.err
	}
	return d, nil
}

// calc keeps the first division error so Compute can fill every field
// without checking after each one.
type calc struct {
	date time.Time
	err  error
}

func (c *calc) kpi(name string, cur, prev float64) KPI {
	k := KPI{Name: name, Current: cur, Previous: prev}
	if prev == 0 {
		if c.err == nil {
			c.err = &DivisionByZeroError{KPI: name, Date: c.date}
		}
		return k
	}
	k.Change = PercentChange(cur, prev)
	return k
}

// PercentChange is round(100*(cur-prev)/prev, 2). prev must be non-zero.
func PercentChange(cur, prev float64) float64 {
	v := round2(100 * (cur - prev) / prev)
	if v == 0 {
		return 0 // no negative zero
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
