package core

import "testing"

func sampleTable() Table {
	return MustTable(
		Record{Division: Primary, Class: "Class 1", Grade: GradeAStar, Count: 5},
		Record{Division: Primary, Class: "Class 1", Grade: GradeU, Count: 2},
		Record{Division: Primary, Class: "Class 2", Grade: GradeB, Count: 7},
		Record{Division: Secondary, Class: "Class 4", Grade: GradeA, Count: 6},
		Record{Division: Secondary, Class: "Class 4", Grade: GradeAStar, Count: 1},
		Record{Division: Secondary, Class: "Class 5", Grade: GradeE, Count: 3},
	)
}

func TestAggregateSumsDuplicateGrades(t *testing.T) {
	tbl := MustTable(
		Record{Division: Primary, Class: "Class1", Grade: GradeA, Count: 5},
		Record{Division: Primary, Class: "Class1", Grade: GradeA, Count: 3},
		Record{Division: Primary, Class: "Class1", Grade: GradeB, Count: 2},
	)
	got := Aggregate(tbl, ByClass("Class1"))
	want := Distribution{0, 8, 2, 0, 0, 0, 0}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAggregateEmptyIsZero(t *testing.T) {
	var empty Table
	d := Aggregate(empty, All())
	if d != (Distribution{}) || d.Total() != 0 || len(d.Values()) != NumGrades {
		t.Fatalf("expected all-zero distribution, got %v", d)
	}
	if d := Aggregate(sampleTable(), ByClass("nope")); d.Total() != 0 {
		t.Fatalf("unmatched filter should be all zero, got %v", d)
	}
}

func TestAggregateIgnoresRowOrder(t *testing.T) {
	rows := sampleTable().Records()
	reversed := make([]Record, len(rows))
	for i := range rows {
		reversed[len(rows)-1-i] = rows[i]
	}
	a := Aggregate(sampleTable(), All())
	b := Aggregate(MustTable(reversed...), All())
	if a != b {
		t.Fatalf("row order changed result: %v vs %v", a, b)
	}
}

func TestDivisionsPartitionAll(t *testing.T) {
	tbl := sampleTable()
	all := Aggregate(tbl, All())
	sum := Aggregate(tbl, ByDivision(Primary)).Add(Aggregate(tbl, ByDivision(Secondary)))
	if sum != all {
		t.Fatalf("primary+secondary=%v, all=%v", sum, all)
	}
	for i, v := range all {
		if v < 0 {
			t.Fatalf("negative entry %d: %d", i, v)
		}
	}
}

func TestComparisonMatrixMatchesDistributions(t *testing.T) {
	tbl := sampleTable()
	classes := []string{"Class 4", "Class 1", "Missing", "Class 2"}
	m := ComparisonMatrix(tbl, classes)
	for _, g := range Grades {
		if len(m.Counts[g]) != len(classes) {
			t.Fatalf("grade %s has %d cells", g, len(m.Counts[g]))
		}
		for i, c := range classes {
			want := Aggregate(tbl, ByClass(c)).Count(g)
			if got := m.Cell(g, i); got != want {
				t.Fatalf("cell %s/%s: got %d want %d", g, c, got, want)
			}
		}
	}
	if m.Column(2).Total() != 0 {
		t.Fatalf("missing class should be zero column")
	}
	if m.Column(1) != Aggregate(tbl, ByClass("Class 1")) {
		t.Fatalf("column mismatch")
	}
}

func TestComparisonMatrixEmptyClassList(t *testing.T) {
	m := ComparisonMatrix(sampleTable(), nil)
	for _, g := range Grades {
		if len(m.Counts[g]) != 0 {
			t.Fatalf("expected empty rows")
		}
	}
	if m.Cell(GradeA, 0) != 0 {
		t.Fatalf("out of range cell should be 0")
	}
}

func TestFilterInClass(t *testing.T) {
	tbl := MustTable(
		Record{Division: Primary, Class: "Lab", Grade: GradeA, Count: 2},
		Record{Division: Secondary, Class: "Lab", Grade: GradeA, Count: 5},
	)
	if got := Aggregate(tbl, InClass(Secondary, "Lab")).Count(GradeA); got != 5 {
		t.Fatalf("got %d", got)
	}
	if got := Aggregate(tbl, ByClass("Lab")).Count(GradeA); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := tbl.Select(ByDivision(Primary)).Len(); got != 1 {
		t.Fatalf("select len %d", got)
	}
}

func TestDistributionPassed(t *testing.T) {
	d := Distribution{1, 2, 3, 0, 0, 0, 4}
	if d.Total() != 10 || d.Passed() != 6 {
		t.Fatalf("total=%d passed=%d", d.Total(), d.Passed())
	}
	if d.Labels()[0] != "A*" || d.Labels()[6] != "U" {
		t.Fatalf("labels: %v", d.Labels())
	}
}
