// Package dashboard derives the figures shown on the overview and division
// pages from the aggregates in core.
package dashboard

import (
	"strings"

	"gradeboard/internal/core"
)

const (
	ChartBar ChartType = "bar"
	ChartPie ChartType = "pie"
)

// ChartType selects how single-series distributions are drawn.
type ChartType string

// ParseChartType defaults to ChartBar for anything but "pie".
func ParseChartType(s string) ChartType {
	if strings.EqualFold(strings.TrimSpace(s), string(ChartPie)) {
		return ChartPie
	}
	return ChartBar
}

// PassRate is the percentage of students without a U grade. It is 0 when
// the distribution is empty.
func PassRate(d core.Distribution) float64 {
	total := d.Total()
	if total == 0 {
		return 0
	}
	return float64(d.Passed()) / float64(total) * 100
}

// DivisionSummary is the headline figures for one division.
type DivisionSummary struct {
	Division     core.Division
	Total        int64
	PassRate     float64
	Distribution core.Distribution
}

// Overview is the whole-school page.
type Overview struct {
	Total     int64
	PassRate  float64
	Overall   core.Distribution
	Divisions []DivisionSummary
}

// ClassPanel is one per-class chart on a division page.
type ClassPanel struct {
	Class        string
	Total        int64
	PassRate     float64
	Distribution core.Distribution
}

// DivisionView is the detailed page of one division.
type DivisionView struct {
	Division   core.Division
	Total      int64
	PassRate   float64
	Classes    []string
	Panels     []ClassPanel
	Comparison core.Matrix
}

// BuildOverview summarises t. Primary and Secondary are always present so
// the page layout does not depend on the upload.
func BuildOverview(t core.Table) Overview {
	overall := core.Aggregate(t, core.All())
	ov := Overview{
		Total:    overall.Total(),
		PassRate: PassRate(overall),
		Overall:  overall,
	}
	for _, d := range core.Divisions {
		dist := core.Aggregate(t, core.ByDivision(d))
		ov.Divisions = append(ov.Divisions, DivisionSummary{
			Division:     d,
			Total:        dist.Total(),
			PassRate:     PassRate(dist),
			Distribution: dist,
		})
	}
	return ov
}

// Division returns the summary of d, or a zero summary.
func (o Overview) Division(d core.Division) DivisionSummary {
	for _, s := range o.Divisions {
		if s.Division == d {
			return s
		}
	}
	return DivisionSummary{Division: d}
}

// BuildDivisionView lays out every class of d in lexical order.
func BuildDivisionView(t core.Table, d core.Division) DivisionView {
	sub := t.Select(core.ByDivision(d))
	dist := core.Aggregate(sub, core.All())
	classes := sub.Classes(d)
	v := DivisionView{
		Division:   d,
		Total:      dist.Total(),
		PassRate:   PassRate(dist),
		Classes:    classes,
		Comparison: core.ComparisonMatrix(sub, classes),
	}
	for i, c := range classes {
		cd := v.Comparison.Column(i)
		v.Panels = append(v.Panels, ClassPanel{
			Class:        c,
			Total:        cd.Total(),
			PassRate:     PassRate(cd),
			Distribution: cd,
		})
	}
	return v
}

// Rows splits panels into rows of n for the two-column grid.
func (v DivisionView) Rows(n int) [][]ClassPanel {
	if n <= 0 {
		n = 1
	}
	var out [][]ClassPanel
	for i := 0; i < len(v.Panels); i += n {
		end := i + n
		if end > len(v.Panels) {
			end = len(v.Panels)
		}
		out = append(out, v.Panels[i:end])
	}
	return out
}
