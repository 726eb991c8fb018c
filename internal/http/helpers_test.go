package http

import (
	"testing"

	"gradeboard/internal/core"
)

func TestFormatThousands(t *testing.T) {
	tests := map[int64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		12345:   "12,345",
		100000:  "100,000",
		1234567: "1,234,567",
		-4200:   "-4,200",
	}
	for in, want := range tests {
		if got := formatThousands(in); got != want {
			t.Errorf("formatThousands(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := formatPercent(87.54); got != "87.5%" {
		t.Errorf("got %q", got)
	}
	if got := formatPercent(0); got != "0.0%" {
		t.Errorf("got %q", got)
	}
}

func TestResolveDivision(t *testing.T) {
	tbl := core.MustTable(
		core.Record{Division: core.Primary, Class: "P1", Grade: core.GradeA, Count: 1},
		core.Record{Division: "Sixth Form", Class: "L6", Grade: core.GradeB, Count: 2},
	)

	tests := []struct {
		param string
		want  core.Division
		ok    bool
	}{
		{"", "", true},
		{"primary", core.Primary, true},
		{"SECONDARY", core.Secondary, true},
		{"Sixth Form", "Sixth Form", true},
		{"sixth form", "Sixth Form", true},
		{"nursery", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveDivision(tt.param, tbl)
		if got != tt.want || ok != tt.ok {
			t.Errorf("resolveDivision(%q) = %q, %v; want %q, %v", tt.param, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNavDivisions(t *testing.T) {
	tbl := core.MustTable(core.Record{Division: "Sixth Form", Class: "L6", Grade: core.GradeB, Count: 2})
	got := navDivisions(tbl)
	want := []core.Division{core.Primary, core.Secondary, "Sixth Form"}
	if len(got) != len(want) {
		t.Fatalf("navDivisions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("navDivisions = %v, want %v", got, want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  Class\x00 1\n "); got != "Class 1" {
		t.Errorf("got %q", got)
	}
}
