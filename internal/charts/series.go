package charts

import "gradeboard/internal/core"

// Dataset is one named series of a client-side chart.
type Dataset struct {
	Label  string   `json:"label"`
	Data   []int64  `json:"data"`
	Colors []string `json:"colors"`
}

// Series is the JSON shape served under /api for client-side charting.
type Series struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

func gradeLabels() []string {
	return core.Distribution{}.Labels()
}

// DistributionSeries has the grade labels and one dataset coloured per grade.
func DistributionSeries(label string, d core.Distribution) Series {
	return Series{
		Labels: gradeLabels(),
		Datasets: []Dataset{{
			Label:  label,
			Data:   d.Values(),
			Colors: append([]string(nil), GradeColors[:]...),
		}},
	}
}

// MatrixSeries has the class names as labels and one dataset per grade, the
// layout of a stacked bar chart.
func MatrixSeries(m core.Matrix) Series {
	s := Series{Labels: append([]string{}, m.Classes...)}
	for _, g := range core.Grades {
		colors := make([]string, len(m.Classes))
		for i := range colors {
			colors[i] = GradeColors[g]
		}
		s.Datasets = append(s.Datasets, Dataset{
			Label:  g.String(),
			Data:   append([]int64{}, m.Counts[g]...),
			Colors: colors,
		})
	}
	return s
}

// DivisionSeries has the grade labels and one dataset per division.
func DivisionSeries(divisions []core.Division, dists []core.Distribution) Series {
	s := Series{Labels: gradeLabels()}
	for i, d := range divisions {
		if i >= len(dists) {
			break
		}
		c := fallbackColor
		if dc, ok := DivisionColors[d]; ok {
			c = dc
		}
		colors := make([]string, core.NumGrades)
		for j := range colors {
			colors[j] = c
		}
		s.Datasets = append(s.Datasets, Dataset{Label: string(d), Data: dists[i].Values(), Colors: colors})
	}
	return s
}
