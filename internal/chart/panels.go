package chart

import (
	"image/color"
	"sort"
	"time"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

// Series is one value per day, in chronological order.
type Series struct {
	Labels []string
	Values []float64
}

// Grouped holds one bar per (day, group). Values[g][i] is group g on day i.
type Grouped struct {
	Labels []string
	Groups []string
	Values [][]float64
}

// Panel is a single cell of the 4x2 grid. Exactly one of Line or Bars is set.
type Panel struct {
	Title string
	Color color.RGBA
	Line  *Series
	Bars  *Grouped
}

func rgb(hex uint32) color.RGBA {
	return color.RGBA{R: uint8(hex >> 16), G: uint8(hex >> 8), B: uint8(hex), A: 0xff}
}

var (
	colorPlum  = rgb(0x4f354a)
	colorMauve = rgb(0x9a8c98)
	colorSky   = rgb(0x3891a6)
	colorTeal  = rgb(0x0d5c63)
)

// palette for grouped bars, dark to light.
var palette = []color.RGBA{
	rgb(0x2e1e3b), rgb(0x413d7b), rgb(0x37659e), rgb(0x348fa7), rgb(0x40b7ad), rgb(0x8bdab2),
}

// Panels lays out the eight panels, row by row.
func Panels(dim []dataset.DimensionedRow, global []dataset.GlobalRow) []Panel {
	rows := make([]dataset.GlobalRow, len(global))
	copy(rows, global)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	line := func(value func(dataset.GlobalRow) float64) *Series {
		s := &Series{Labels: make([]string, len(rows)), Values: make([]float64, len(rows))}
		for i, r := range rows {
			s.Labels[i] = dataset.DisplayDay(r.Date)
			s.Values[i] = value(r)
		}
		return s
	}

	return []Panel{
		{Title: "Actions per user", Color: colorPlum, Line: line(func(r dataset.GlobalRow) float64 { return r.ActionsPerUser })},
		{Title: "Users with actions", Color: colorMauve, Line: line(func(r dataset.GlobalRow) float64 { return float64(r.DAU) })},
		{Title: "Users with actions by OS", Bars: grouped(dim, func(k dataset.Key) string { return k.Platform })},
		{Title: "Users with actions by source", Bars: grouped(dim, func(k dataset.Key) string { return k.Source })},
		{Title: "CTR", Color: colorSky, Line: line(func(r dataset.GlobalRow) float64 { return r.CTR })},
		{Title: "Active users", Color: colorTeal, Line: line(func(r dataset.GlobalRow) float64 { return float64(r.ActiveUsers) })},
		{Title: "Messages", Color: colorSky, Line: line(func(r dataset.GlobalRow) float64 { return float64(r.MessagesSent) })},
		{Title: "Messages per user", Color: colorPlum, Line: line(func(r dataset.GlobalRow) float64 { return r.MessagesPerUser })},
	}
}

type cell struct {
	day   time.Time
	group string
}

// grouped averages DAU over the rows sharing (day, group).
func grouped(dim []dataset.DimensionedRow, groupOf func(dataset.Key) string) *Grouped {
	sums := make(map[cell]float64)
	counts := make(map[cell]int)
	daySet := make(map[time.Time]struct{})
	groupSet := make(map[string]struct{})
	for _, r := range dim {
		c := cell{day: r.Date, group: groupOf(r.Key)}
		sums[c] += float64(r.DAU)
		counts[c]++
		daySet[r.Date] = struct{}{}
		groupSet[c.group] = struct{}{}
	}

	days := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	g := &Grouped{Labels: make([]string, len(days)), Groups: groups, Values: make([][]float64, len(groups))}
	for i, d := range days {
		g.Labels[i] = dataset.DisplayDay(d)
	}
	for gi, name := range groups {
		g.Values[gi] = make([]float64, len(days))
		for di, d := range days {
			c := cell{day: d, group: name}
			if n := counts[c]; n > 0 {
				g.Values[gi][di] = sums[c] / float64(n)
			}
		}
	}
	return g
}
