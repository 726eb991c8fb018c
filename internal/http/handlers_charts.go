package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"gradeboard/internal/charts"
	"gradeboard/internal/core"
	"gradeboard/internal/dashboard"
	applog "gradeboard/internal/log"
)

const (
	maxChartWidth  = 1600
	maxChartHeight = 1200
)

// chartQuery is the filter and shape of a chart or series request.
type chartQuery struct {
	Division core.Division
	Class    string
	Type     dashboard.ChartType
	Size     charts.Size
}

func parseChartQuery(r *http.Request, t core.Table) (chartQuery, error) {
	q := r.URL.Query()
	d, ok := resolveDivision(q.Get("division"), t)
	if !ok {
		return chartQuery{}, fmt.Errorf("unknown division %q", sanitizeInput(q.Get("division")))
	}
	return chartQuery{
		Division: d,
		Class:    sanitizeInput(q.Get("class")),
		Type:     dashboard.ParseChartType(q.Get("type")),
		Size: charts.Size{
			Width:  boundedInt(q.Get("w"), maxChartWidth),
			Height: boundedInt(q.Get("h"), maxChartHeight),
		},
	}, nil
}

// boundedInt parses a positive dimension; 0 selects the chart default.
func boundedInt(s string, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

func (q chartQuery) filter() core.Filter {
	return core.Filter{Division: q.Division, Class: q.Class}
}

func (q chartQuery) title() string {
	switch {
	case q.Class != "":
		return q.Class + " Grade Distribution"
	case q.Division != "":
		return string(q.Division) + " School Grade Distribution"
	default:
		return "Overall Grade Distribution"
	}
}

func (s *Server) chartView(w http.ResponseWriter, r *http.Request) (view, chartQuery, bool) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return view{}, chartQuery{}, false
	}
	q, err := parseChartQuery(r, v.Table)
	if err != nil {
		NotFoundError(err.Error()).Write(w)
		return view{}, chartQuery{}, false
	}
	return v, q, true
}

// writeSVG renders into a buffer so a failed chart becomes a 500, not a
// truncated image.
func (s *Server) writeSVG(w http.ResponseWriter, r *http.Request, chart string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Chart render error",
			applog.FieldChart, chart,
			applog.FieldComponent, applog.ComponentCharts,
			applog.FieldError, err.Error())
		http.Error(w, "chart could not be rendered", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleDistributionChart draws one filtered distribution as bar or pie.
func (s *Server) handleDistributionChart(w http.ResponseWriter, r *http.Request) {
	v, q, ok := s.chartView(w, r)
	if !ok {
		return
	}
	d := core.Aggregate(v.Table, q.filter())
	s.writeSVG(w, r, "distribution", func(buf *bytes.Buffer) error {
		if q.Type == dashboard.ChartPie {
			return charts.DistributionPie(buf, q.title(), d, q.Size)
		}
		return charts.DistributionBar(buf, q.title(), d, q.Size)
	})
}

// handleComparisonChart draws the stacked per-class comparison of a division.
func (s *Server) handleComparisonChart(w http.ResponseWriter, r *http.Request) {
	v, q, ok := s.chartView(w, r)
	if !ok {
		return
	}
	sub := v.Table.Select(core.ByDivision(q.Division))
	m := core.ComparisonMatrix(sub, sub.Classes(q.Division))
	title := "Comparative Analysis - All Classes"
	if q.Division != "" {
		title = fmt.Sprintf("Comparative Analysis - All %s Classes", q.Division)
	}
	s.writeSVG(w, r, "comparison", func(buf *bytes.Buffer) error {
		return charts.ClassComparison(buf, title, m, q.Size)
	})
}

// handleDivisionsChart draws the divisions side by side per grade.
func (s *Server) handleDivisionsChart(w http.ResponseWriter, r *http.Request) {
	v, q, ok := s.chartView(w, r)
	if !ok {
		return
	}
	divisions, dists := divisionDistributions(v.Table)
	s.writeSVG(w, r, "divisions", func(buf *bytes.Buffer) error {
		return charts.DivisionComparison(buf, "Primary vs Secondary Grade Distribution", divisions, dists, q.Size)
	})
}

// divisionDistributions always includes Primary and Secondary, followed by
// any other division of t.
func divisionDistributions(t core.Table) ([]core.Division, []core.Distribution) {
	divisions := navDivisions(t)
	dists := make([]core.Distribution, len(divisions))
	for i, d := range divisions {
		dists[i] = core.Aggregate(t, core.ByDivision(d))
	}
	return divisions, dists
}

func (s *Server) handleAPIDistribution(w http.ResponseWriter, r *http.Request) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	q, err := parseChartQuery(r, v.Table)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	d := core.Aggregate(v.Table, q.filter())
	_ = writeJSON(w, http.StatusOK, struct {
		charts.Series
		Division string  `json:"division,omitempty"`
		Class    string  `json:"class,omitempty"`
		Total    int64   `json:"total"`
		PassRate float64 `json:"pass_rate"`
	}{
		Series:   charts.DistributionSeries(q.title(), d),
		Division: string(q.Division),
		Class:    q.Class,
		Total:    d.Total(),
		PassRate: dashboard.PassRate(d),
	})
}

func (s *Server) handleAPIMatrix(w http.ResponseWriter, r *http.Request) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	q, err := parseChartQuery(r, v.Table)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	sub := v.Table.Select(core.ByDivision(q.Division))
	m := core.ComparisonMatrix(sub, sub.Classes(q.Division))
	_ = writeJSON(w, http.StatusOK, struct {
		charts.Series
		Division string `json:"division,omitempty"`
	}{
		Series:   charts.MatrixSeries(m),
		Division: string(q.Division),
	})
}

type divisionJSON struct {
	Division     string  `json:"division"`
	Total        int64   `json:"total"`
	PassRate     float64 `json:"pass_rate"`
	Distribution []int64 `json:"distribution"`
	Classes      int     `json:"classes"`
}

func (s *Server) handleAPIOverview(w http.ResponseWriter, r *http.Request) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	ov := dashboard.BuildOverview(v.Table)
	divisions, dists := divisionDistributions(v.Table)

	out := struct {
		Source     string         `json:"source"`
		Uploaded   bool           `json:"uploaded"`
		Total      int64          `json:"total"`
		PassRate   float64        `json:"pass_rate"`
		Grades     []string       `json:"grades"`
		Overall    []int64        `json:"overall"`
		Divisions  []divisionJSON `json:"divisions"`
		Comparison charts.Series  `json:"comparison"`
	}{
		Source:     v.Source,
		Uploaded:   v.Session.Uploaded,
		Total:      ov.Total,
		PassRate:   ov.PassRate,
		Grades:     ov.Overall.Labels(),
		Overall:    ov.Overall.Values(),
		Comparison: charts.DivisionSeries(divisions, dists),
	}
	for i, d := range divisions {
		out.Divisions = append(out.Divisions, divisionJSON{
			Division:     string(d),
			Total:        dists[i].Total(),
			PassRate:     dashboard.PassRate(dists[i]),
			Distribution: dists[i].Values(),
			Classes:      len(v.Table.Classes(d)),
		})
	}
	_ = writeJSON(w, http.StatusOK, out)
}
