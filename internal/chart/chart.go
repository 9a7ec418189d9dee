// Package chart renders the 4x2 trend grid attached to the daily report.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/TobiSchelling/dailyreport/internal/dataset"
)

const (
	rows = 4
	cols = 2

	width  = 15 * vg.Inch
	height = 25 * vg.Inch

	// width of one day's bar group on the canvas.
	groupWidth vg.Length = 48
)

// ErrNoData is returned when both tables are empty.
var ErrNoData = errors.New("no data to plot")

// Image is a rendered chart and its logical file name.
type Image struct {
	Name string
	PNG  []byte
}

// Render draws the chart grid as PNG. The output depends only on the table
// contents, not on row order.
func Render(dim []dataset.DimensionedRow, global []dataset.GlobalRow) (*Image, error) {
	start, end, ok := span(dim, global)
	if !ok {
		return nil, ErrNoData
	}

	panels := Panels(dim, global)
	plots := make([][]*plot.Plot, rows)
	for r := 0; r < rows; r++ {
		plots[r] = make([]*plot.Plot, cols)
		for c := 0; c < cols; c++ {
			p, err := build(panels[r*cols+c])
			if err != nil {
				return nil, fmt.Errorf("panel %q: %w", panels[r*cols+c].Title, err)
			}
			plots[r][c] = p
		}
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      cols,
		PadX:      vg.Centimeter,
		PadY:      vg.Centimeter,
		PadTop:    vg.Centimeter / 2,
		PadBottom: vg.Centimeter / 2,
		PadLeft:   vg.Centimeter / 2,
		PadRight:  vg.Centimeter / 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}

	return &Image{Name: dataset.FileToken(start, end) + ".png", PNG: buf.Bytes()}, nil
}

func build(pn Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = pn.Title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Add(plotter.NewGrid())

	switch {
	case pn.Line != nil:
		if len(pn.Line.Values) > 0 {
			pts := make(plotter.XYs, len(pn.Line.Values))
			for i, v := range pn.Line.Values {
				pts[i].X = float64(i)
				pts[i].Y = v
			}
			l, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			l.LineStyle.Color = pn.Color
			l.LineStyle.Width = vg.Points(2)
			p.Add(l)
		}
		nominalX(p, pn.Line.Labels)

	case pn.Bars != nil:
		n := len(pn.Bars.Groups)
		if n > 0 {
			w := groupWidth / vg.Length(n)
			for gi, name := range pn.Bars.Groups {
				bars, err := plotter.NewBarChart(plotter.Values(pn.Bars.Values[gi]), w)
				if err != nil {
					return nil, err
				}
				bars.Color = palette[gi%len(palette)]
				bars.LineStyle.Width = 0
				bars.Offset = w * vg.Length(2*gi-(n-1)) / 2
				p.Add(bars)
				p.Legend.Add(name, bars)
			}
			p.Legend.Top = true
		}
		nominalX(p, pn.Bars.Labels)
	}

	return p, nil
}

// nominalX labels the x axis with day names; plot.NominalX needs at least one.
func nominalX(p *plot.Plot, labels []string) {
	if len(labels) > 0 {
		p.NominalX(labels...)
	}
}

// span returns the first and last date across both tables.
func span(dim []dataset.DimensionedRow, global []dataset.GlobalRow) (start, end time.Time, ok bool) {
	visit := func(d time.Time) {
		if !ok || d.Before(start) {
			start = d
		}
		if !ok || d.After(end) {
			end = d
		}
		ok = true
	}
	for _, r := range dim {
		visit(r.Date)
	}
	for _, r := range global {
		visit(r.Date)
	}
	return start, end, ok
}
