package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	Primary   Division = "Primary"
	Secondary Division = "Secondary"
)

// Grade values are their rank in the fixed best-to-worst order.
const (
	GradeAStar Grade = iota
	GradeA
	GradeB
	GradeC
	GradeD
	GradeE
	GradeU
)

// NumGrades is the length of every grade-ordered series.
const NumGrades = 7

// MaxCount bounds a single record's count so that sums over any
// realistic table stay far from int64 overflow.
const MaxCount = 1_000_000_000

type (
	Division string

	Grade int

	// Record is the number of students of one class that achieved one grade.
	Record struct {
		Division Division
		Class    string
		Grade    Grade
		Count    int64
	}

	// Table is an immutable, validated sequence of records.
	Table struct {
		records []Record
	}
)

var (
	ErrInvalidGrade    = errors.New("invalid grade")
	ErrNegativeCount   = errors.New("negative count")
	ErrCountTooLarge   = errors.New("count too large")
	ErrEmptyClass      = errors.New("empty class name")
	ErrUnknownDivision = errors.New("unknown division")
)

// Grades lists every grade in rank order.
var Grades = [NumGrades]Grade{GradeAStar, GradeA, GradeB, GradeC, GradeD, GradeE, GradeU}

var gradeNames = [NumGrades]string{"A*", "A", "B", "C", "D", "E", "U"}

// Divisions lists the known divisions in display order.
var Divisions = []Division{Primary, Secondary}

// ParseGrade maps a label such as "A*" or "U" to its Grade.
func ParseGrade(s string) (Grade, error) {
	s = strings.TrimSpace(s)
	for i, name := range gradeNames {
		if s == name {
			return Grade(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
}

func (g Grade) Valid() bool {
	return g >= GradeAStar && g <= GradeU
}

// Rank returns the zero-based position of g in the grade order.
func (g Grade) Rank() int {
	return int(g)
}

// Passing reports whether g counts towards the pass rate.
func (g Grade) Passing() bool {
	return g.Valid() && g != GradeU
}

func (g Grade) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Grade(%d)", int(g))
	}
	return gradeNames[g]
}

// ParseDivision maps a label to a known Division.
func ParseDivision(s string) (Division, error) {
	s = strings.TrimSpace(s)
	for _, d := range Divisions {
		if s == string(d) {
			return d, nil
		}
	}
	return Division(s), fmt.Errorf("%w: %q", ErrUnknownDivision, s)
}

// Known reports whether d is Primary or Secondary.
func (d Division) Known() bool {
	return d == Primary || d == Secondary
}

// Slug is the lower-case form used in URLs.
func (d Division) Slug() string {
	return strings.ToLower(string(d))
}

func (r Record) Validate() error {
	if !r.Grade.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, int(r.Grade))
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, r.Count)
	}
	if r.Count > MaxCount {
		return fmt.Errorf("%w: %d", ErrCountTooLarge, r.Count)
	}
	if strings.TrimSpace(r.Class) == "" {
		return ErrEmptyClass
	}
	return nil
}

// NewTable validates and copies records into a Table.
func NewTable(records ...Record) (Table, error) {
	out := make([]Record, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return Table{}, fmt.Errorf("record %d (%s/%s): %w", i, r.Division, r.Class, err)
		}
		out[i] = r
	}
	return Table{records: out}, nil
}

// MustTable is NewTable for fixed data known to be valid.
func MustTable(records ...Record) Table {
	t, err := NewTable(records...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Table) Len() int {
	return len(t.records)
}

// Records returns a copy of the table rows in input order.
func (t Table) Records() []Record {
	return append([]Record(nil), t.records...)
}

// Select returns the rows matching f.
func (t Table) Select(f Filter) Table {
	var out []Record
	for _, r := range t.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return Table{records: out}
}

// Classes returns the unique class names of a division, sorted lexically.
// An empty division returns the classes of every division.
func (t Table) Classes(d Division) []string {
	seen := map[string]struct{}{}
	for _, r := range t.records {
		if d != "" && r.Division != d {
			continue
		}
		seen[r.Class] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DivisionsPresent returns the divisions that occur in t, known ones first.
func (t Table) DivisionsPresent() []Division {
	seen := map[Division]struct{}{}
	for _, r := range t.records {
		seen[r.Division] = struct{}{}
	}
	var out []Division
	for _, d := range Divisions {
		if _, ok := seen[d]; ok {
			out = append(out, d)
			delete(seen, d)
		}
	}
	var rest []string
	for d := range seen {
		rest = append(rest, string(d))
	}
	sort.Strings(rest)
	for _, d := range rest {
		out = append(out, Division(d))
	}
	return out
}

// Merged sums duplicate (division, class, grade) rows and orders the result
// by division, class and grade rank.
func (t Table) Merged() Table {
	type key struct {
		d Division
		c string
		g Grade
	}
	sums := map[key]int64{}
	for _, r := range t.records {
		sums[key{r.Division, r.Class, r.Grade}] += r.Count
	}
	out := make([]Record, 0, len(sums))
	for k, v := range sums {
		out = append(out, Record{Division: k.d, Class: k.c, Grade: k.g, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Division != b.Division {
			return a.Division < b.Division
		}
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.Grade < b.Grade
	})
	return Table{records: out}
}
