package charts

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradeboard/internal/core"
	"gradeboard/internal/loader"
)

func requireSVG(t *testing.T, b []byte) {
	t.Helper()
	require.NotEmpty(t, b)
	s := string(b)
	require.True(t, strings.Contains(s, "<svg"), "not an svg: %.80s", s)
	assert.NotContains(t, s, "NaN")
}

func TestDistributionBar(t *testing.T) {
	var buf bytes.Buffer
	d := core.Aggregate(loader.Sample(), core.ByClass("Class 1"))
	require.NoError(t, DistributionBar(&buf, "Class 1", d, Size{}))
	requireSVG(t, buf.Bytes())
	assert.Contains(t, buf.String(), "A*")
}

func TestDistributionBarAllZero(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DistributionBar(&buf, "Empty", core.Distribution{}, Size{Width: 300, Height: 200}))
	requireSVG(t, buf.Bytes())
}

func TestDistributionPie(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DistributionPie(&buf, "Pie", core.Distribution{3, 0, 1, 0, 0, 0, 0}, Size{}))
	requireSVG(t, buf.Bytes())
	assert.NotContains(t, buf.String(), "No data")
}

func TestEmptyInputsRenderPlaceholder(t *testing.T) {
	cases := map[string]func(*bytes.Buffer) error{
		"pie": func(b *bytes.Buffer) error {
			return DistributionPie(b, "Pie <empty>", core.Distribution{}, Size{})
		},
		"stacked": func(b *bytes.Buffer) error {
			return ClassComparison(b, "Classes", core.Matrix{}, Size{})
		},
		"divisions": func(b *bytes.Buffer) error {
			return DivisionComparison(b, "Divisions", nil, nil, Size{})
		},
	}
	for name, render := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render(&buf))
			assert.Contains(t, buf.String(), "No data")
			require.NoError(t, xml.Unmarshal(buf.Bytes(), new(struct{})), "placeholder must be well-formed")
		})
	}
}

func TestPlaceholderEscapesTitle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Placeholder(&buf, `<script>"x"</script>`, Size{}))
	assert.NotContains(t, buf.String(), "<script>")
}

func TestClassComparison(t *testing.T) {
	tbl := loader.Sample()
	classes := tbl.Classes(core.Primary)
	m := core.ComparisonMatrix(tbl, append(classes, "Missing"))

	var buf bytes.Buffer
	require.NoError(t, ClassComparison(&buf, "Primary", m, Size{Width: 800}))
	requireSVG(t, buf.Bytes())
	assert.Contains(t, buf.String(), "Class 2")
	assert.Contains(t, buf.String(), "Missing (0)")
}

func TestClassBarsAreAbsolute(t *testing.T) {
	small := core.MustTable(
		core.Record{Division: core.Primary, Class: "Small", Grade: core.GradeA, Count: 2},
		core.Record{Division: core.Primary, Class: "Small", Grade: core.GradeU, Count: 1},
		core.Record{Division: core.Primary, Class: "Large", Grade: core.GradeB, Count: 9},
	)
	bars := classBars(core.ComparisonMatrix(small, []string{"Small", "Large", "Empty"}))
	require.Len(t, bars, 3)
	assert.Equal(t, "Small (3)", bars[0].Name)
	assert.Equal(t, "Large (9)", bars[1].Name)
	assert.Equal(t, "Empty (0)", bars[2].Name)

	// Every stack spans the largest total; the grade segments keep raw counts.
	for _, b := range bars {
		require.Len(t, b.Values, 1+core.NumGrades)
		var sum float64
		for _, v := range b.Values {
			sum += v.Value
		}
		assert.Equal(t, 9.0, sum, b.Name)
	}
	assert.Equal(t, 6.0, bars[0].Values[0].Value)
	assert.Equal(t, 2.0, bars[0].Values[1+int(core.GradeA)].Value)
	assert.Equal(t, 1.0, bars[0].Values[1+int(core.GradeU)].Value)
	assert.Equal(t, 0.0, bars[1].Values[0].Value)
	assert.Equal(t, 9.0, bars[2].Values[0].Value)
}

func TestClassBarsAllEmpty(t *testing.T) {
	bars := classBars(core.ComparisonMatrix(core.Table{}, []string{"A", "B"}))
	require.Len(t, bars, 2)
	for _, b := range bars {
		require.Len(t, b.Values, 1)
		assert.Equal(t, "no data", b.Values[0].Label)
	}
}

func TestDivisionComparison(t *testing.T) {
	tbl := loader.Sample()
	divs := []core.Division{core.Primary, core.Secondary}
	dists := []core.Distribution{
		core.Aggregate(tbl, core.ByDivision(core.Primary)),
		core.Aggregate(tbl, core.ByDivision(core.Secondary)),
	}
	var buf bytes.Buffer
	require.NoError(t, DivisionComparison(&buf, "By division", divs, dists, Size{}))
	requireSVG(t, buf.Bytes())
}

func TestGradeColor(t *testing.T) {
	assert.Equal(t, uint8(0x2e), GradeColor(core.GradeAStar).R)
	assert.Equal(t, uint8(0x95), GradeColor(core.GradeU).R)
	assert.Equal(t, uint8(0x7f), GradeColor(core.Grade(42)).R)
}

func TestBarWidth(t *testing.T) {
	assert.Equal(t, 40, barWidth(640, 0))
	assert.Equal(t, 8, barWidth(100, 50))
	assert.Equal(t, 60, barWidth(2000, 2))
}

func TestSeries(t *testing.T) {
	d := core.Distribution{1, 2, 3, 4, 5, 6, 7}
	s := DistributionSeries("All", d)
	assert.Equal(t, []string{"A*", "A", "B", "C", "D", "E", "U"}, s.Labels)
	require.Len(t, s.Datasets, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, s.Datasets[0].Data)
	assert.Equal(t, "#2ecc71", s.Datasets[0].Colors[0])

	m := core.ComparisonMatrix(loader.Sample(), []string{"Class 1", "Class 2"})
	ms := MatrixSeries(m)
	assert.Equal(t, []string{"Class 1", "Class 2"}, ms.Labels)
	require.Len(t, ms.Datasets, core.NumGrades)
	assert.Equal(t, "U", ms.Datasets[6].Label)
	assert.Equal(t, m.Counts[core.GradeB], ms.Datasets[2].Data)

	ds := DivisionSeries([]core.Division{core.Primary, "Nursery"}, []core.Distribution{d, {}})
	require.Len(t, ds.Datasets, 2)
	assert.Equal(t, "#1f77b4", ds.Datasets[0].Colors[0])
	assert.Equal(t, fallbackColor, ds.Datasets[1].Colors[0])

	empty := MatrixSeries(core.Matrix{})
	assert.NotNil(t, empty.Labels)
}
