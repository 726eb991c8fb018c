// Package charts turns grade aggregates into SVG charts and JSON series.
package charts

import (
	"fmt"
	"html"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"gradeboard/internal/core"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 360
)

// GradeColors holds one hex colour per grade in rank order.
var GradeColors = [core.NumGrades]string{
	"#2ecc71", // A*
	"#3498db", // A
	"#9b59b6", // B
	"#f39c12", // C
	"#e67e22", // D
	"#e74c3c", // E
	"#95a5a6", // U
}

// DivisionColors colours Primary and Secondary in comparisons.
var DivisionColors = map[core.Division]string{
	core.Primary:   "#1f77b4",
	core.Secondary: "#ff7f0e",
}

const fallbackColor = "#7f7f7f"

// Size is the pixel size of a rendered chart.
type Size struct {
	Width, Height int
}

func (s Size) orDefault() Size {
	if s.Width <= 0 {
		s.Width = DefaultWidth
	}
	if s.Height <= 0 {
		s.Height = DefaultHeight
	}
	return s
}

// GradeColor returns the palette colour of g.
func GradeColor(g core.Grade) drawing.Color {
	if !g.Valid() {
		return drawing.ColorFromHex(fallbackColor[1:])
	}
	return drawing.ColorFromHex(GradeColors[g][1:])
}

func divisionColor(d core.Division) drawing.Color {
	if c, ok := DivisionColors[d]; ok {
		return drawing.ColorFromHex(c[1:])
	}
	return drawing.ColorFromHex(fallbackColor[1:])
}

func fill(c drawing.Color) chart.Style {
	return chart.Style{FillColor: c, StrokeColor: c, StrokeWidth: 1}
}

// yRange keeps bar charts valid when every value is zero.
func yRange(max float64) *chart.ContinuousRange {
	if max < 1 {
		max = 1
	} else {
		max *= 1.1
	}
	return &chart.ContinuousRange{Min: 0, Max: max}
}

// DistributionBar draws one bar per grade in rank order.
func DistributionBar(w io.Writer, title string, d core.Distribution, size Size) error {
	size = size.orDefault()
	bars := make([]chart.Value, 0, core.NumGrades)
	var max float64
	for _, g := range core.Grades {
		v := float64(d[g])
		if v > max {
			max = v
		}
		bars = append(bars, chart.Value{Label: g.String(), Value: v, Style: fill(GradeColor(g))})
	}
	bc := chart.BarChart{
		Title:    title,
		Width:    size.Width,
		Height:   size.Height,
		BarWidth: barWidth(size.Width, len(bars)),
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		YAxis: chart.YAxis{Range: yRange(max)},
		Bars:  bars,
	}
	if err := bc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render bar chart: %w", err)
	}
	return nil
}

// DistributionPie draws the share of each grade. Grades with no students
// are left out and an empty distribution renders the placeholder.
func DistributionPie(w io.Writer, title string, d core.Distribution, size Size) error {
	size = size.orDefault()
	if d.Total() == 0 {
		return Placeholder(w, title, size)
	}
	var values []chart.Value
	for _, g := range core.Grades {
		if d[g] == 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", g, d[g]),
			Value: float64(d[g]),
			Style: fill(GradeColor(g)),
		})
	}
	pc := chart.PieChart{
		Title:  title,
		Width:  size.Width,
		Height: size.Height,
		Values: values,
	}
	if err := pc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render pie chart: %w", err)
	}
	return nil
}

// ClassComparison draws one stacked bar per class with one segment per
// grade. Bar heights are absolute student counts, so class sizes compare.
func ClassComparison(w io.Writer, title string, m core.Matrix, size Size) error {
	size = size.orDefault()
	if len(m.Classes) == 0 {
		return Placeholder(w, title, size)
	}
	sbc := chart.StackedBarChart{
		Title:      title,
		Width:      size.Width,
		Height:     size.Height,
		BarSpacing: 20,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		// The axis is labelled in shares of the tallest bar; the class
		// labels carry the totals instead.
		YAxis: chart.Style{Hidden: true},
		Bars:  classBars(m),
	}
	if err := sbc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render stacked chart: %w", err)
	}
	return nil
}

var (
	noDataColor   = drawing.ColorFromHex("dddddd")
	headroomColor = drawing.ColorWhite
)

// classBars builds the stacks for ClassComparison. go-chart fills every
// stack to the full plot height, so each bar is topped with a blank
// headroom segment that brings it up to the largest class total.
func classBars(m core.Matrix) []chart.StackedBar {
	var max int64
	for i := range m.Classes {
		if t := m.Column(i).Total(); t > max {
			max = t
		}
	}
	bars := make([]chart.StackedBar, 0, len(m.Classes))
	for i, class := range m.Classes {
		col := m.Column(i)
		total := col.Total()
		bar := chart.StackedBar{Name: fmt.Sprintf("%s (%d)", class, total)}
		if max == 0 {
			bar.Values = []chart.Value{{Label: "no data", Value: 1, Style: fill(noDataColor)}}
		} else {
			bar.Values = append(bar.Values, chart.Value{Value: float64(max - total), Style: fill(headroomColor)})
			for _, g := range core.Grades {
				bar.Values = append(bar.Values, chart.Value{Label: g.String(), Value: float64(col[g]), Style: fill(GradeColor(g))})
			}
		}
		bars = append(bars, bar)
	}
	return bars
}

// DivisionComparison draws grade counts side by side for each division:
// for every grade one bar per division, labelled "A* Primary" and so on.
func DivisionComparison(w io.Writer, title string, divisions []core.Division, dists []core.Distribution, size Size) error {
	size = size.orDefault()
	if len(divisions) == 0 || len(divisions) != len(dists) {
		return Placeholder(w, title, size)
	}
	var bars []chart.Value
	var max float64
	for _, g := range core.Grades {
		for i, d := range divisions {
			v := float64(dists[i][g])
			if v > max {
				max = v
			}
			label := g.String()
			if len(divisions) > 1 {
				label = fmt.Sprintf("%s %s", g, abbreviate(d))
			}
			bars = append(bars, chart.Value{Label: label, Value: v, Style: fill(divisionColor(d))})
		}
	}
	bc := chart.BarChart{
		Title:    title,
		Width:    size.Width,
		Height:   size.Height,
		BarWidth: barWidth(size.Width, len(bars)),
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		YAxis: chart.YAxis{Range: yRange(max)},
		Bars:  bars,
	}
	if err := bc.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("render division chart: %w", err)
	}
	return nil
}

func abbreviate(d core.Division) string {
	switch d {
	case core.Primary:
		return "Pri"
	case core.Secondary:
		return "Sec"
	}
	if len(d) > 3 {
		return string(d[:3])
	}
	return string(d)
}

func barWidth(width, n int) int {
	if n <= 0 {
		return 40
	}
	bw := (width - 80) / n * 2 / 3
	switch {
	case bw < 8:
		return 8
	case bw > 60:
		return 60
	}
	return bw
}

// Placeholder writes a blank chart stating that there is nothing to plot.
func Placeholder(w io.Writer, title string, size Size) error {
	size = size.orDefault()
	_, err := fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
		`<rect width="100%%" height="100%%" fill="#ffffff"/>`+
		`<text x="50%%" y="24" text-anchor="middle" font-family="sans-serif" font-size="14">%s</text>`+
		`<text x="50%%" y="50%%" text-anchor="middle" font-family="sans-serif" font-size="13" fill="#95a5a6">No data</text>`+
		`</svg>`,
		size.Width, size.Height, size.Width, size.Height, html.EscapeString(title))
	return err
}
