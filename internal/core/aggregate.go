package core

// Filter selects rows of a Table. Zero fields match every row.
type Filter struct {
	Division Division
	Class    string
}

// Distribution holds per-grade counts aligned to Grades. It is never sparse:
// a grade with no rows is 0.
type Distribution [NumGrades]int64

// Matrix is a grade by class table of counts. Counts[g][i] belongs to
// Classes[i].
type Matrix struct {
	Classes []string
	Counts  [NumGrades][]int64
}

func All() Filter { return Filter{} }

func ByDivision(d Division) Filter { return Filter{Division: d} }

func ByClass(name string) Filter { return Filter{Class: name} }

// InClass matches one class within one division.
func InClass(d Division, name string) Filter { return Filter{Division: d, Class: name} }

func (f Filter) Match(r Record) bool {
	if f.Division != "" && r.Division != f.Division {
		return false
	}
	if f.Class != "" && r.Class != f.Class {
		return false
	}
	return true
}

// Aggregate sums counts by grade over the rows of t matching f.
func Aggregate(t Table, f Filter) Distribution {
	var d Distribution
	for _, r := range t.records {
		if r.Grade.Valid() && f.Match(r) {
			d[r.Grade] += r.Count
		}
	}
	return d
}

// ComparisonMatrix builds per-grade counts for each class name, in the order
// given. Classes are matched by name only.
func ComparisonMatrix(t Table, classes []string) Matrix {
	m := Matrix{Classes: append([]string(nil), classes...)}
	index := make(map[string][]int, len(classes))
	for i, c := range classes {
		index[c] = append(index[c], i)
	}
	for g := range m.Counts {
		m.Counts[g] = make([]int64, len(classes))
	}
	for _, r := range t.records {
		if !r.Grade.Valid() {
			continue
		}
		for _, i := range index[r.Class] {
			m.Counts[r.Grade][i] += r.Count
		}
	}
	return m
}

func (d Distribution) Count(g Grade) int64 {
	if !g.Valid() {
		return 0
	}
	return d[g]
}

func (d Distribution) Total() int64 {
	var n int64
	for _, v := range d {
		n += v
	}
	return n
}

// Passed is the number of students with a passing grade.
func (d Distribution) Passed() int64 {
	return d.Total() - d[GradeU]
}

// Add returns the entry-wise sum of d and o.
func (d Distribution) Add(o Distribution) Distribution {
	for i := range d {
		d[i] += o[i]
	}
	return d
}

// Labels returns the grade names in order.
func (d Distribution) Labels() []string {
	out := make([]string, NumGrades)
	for i, g := range Grades {
		out[i] = g.String()
	}
	return out
}

// Values returns the counts as a slice.
func (d Distribution) Values() []int64 {
	return append([]int64(nil), d[:]...)
}

func (m Matrix) Cell(g Grade, i int) int64 {
	if !g.Valid() || i < 0 || i >= len(m.Classes) {
		return 0
	}
	return m.Counts[g][i]
}

// Column returns the distribution of the i-th class.
func (m Matrix) Column(i int) Distribution {
	var d Distribution
	if i < 0 || i >= len(m.Classes) {
		return d
	}
	for g := range m.Counts {
		d[g] = m.Counts[g][i]
	}
	return d
}
