package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"gradeboard/internal/core"
)

var templateFuncs = template.FuncMap{
	"percent":   formatPercent,
	"thousands": formatThousands,
	"kib":       func(n int64) string { return fmt.Sprintf("%d KiB", n>>10) },
	"timefmt":   func(t time.Time) string { return t.Format("2 Jan 2006 15:04") },
}

// formatPercent renders a pass rate with one decimal, e.g. "87.5%".
func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// formatThousands groups digits with commas: 12345 -> "12,345".
func formatThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 {
			return -1
		}
		return r
	}, s)
}

// resolveDivision maps a URL slug or label to a division. Known divisions
// always resolve; others only when t contains them. Empty means every
// division.
func resolveDivision(param string, t core.Table) (core.Division, bool) {
	param = sanitizeInput(param)
	if param == "" {
		return "", true
	}
	for _, d := range core.Divisions {
		if strings.EqualFold(param, string(d)) {
			return d, true
		}
	}
	for _, d := range t.DivisionsPresent() {
		if strings.EqualFold(param, string(d)) || param == d.Slug() {
			return d, true
		}
	}
	return "", false
}

// navDivisions is the navigation list: the known divisions, then any other
// division of the current table.
func navDivisions(t core.Table) []core.Division {
	out := append([]core.Division(nil), core.Divisions...)
	for _, d := range t.DivisionsPresent() {
		if !d.Known() {
			out = append(out, d)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func atomicAdd(p *int64) {
	atomic.AddInt64(p, 1)
}
