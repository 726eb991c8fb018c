package loader

import "gradeboard/internal/core"

var sampleCounts = [60]int64{
	5, 8, 12, 10, 8, 5, 2, 4, 6, 10,
	8, 6, 4, 3, 6, 9, 11, 9, 7, 4,
	3, 7, 10, 12, 8, 5, 3, 8, 12, 15,
	10, 7, 5, 4, 10, 14, 16, 12, 8, 6,
	4, 9, 13, 14, 11, 7, 5, 5, 11, 15,
	13, 9, 6, 4, 8, 12, 14, 11, 8, 5,
}

var sampleClasses = [6]string{"Class 1", "Class 2", "Class 3", "Class 4", "Class 5", "Class 6"}

// Sample returns the demonstration dataset: six classes of ten rows each,
// the first three Primary and the last three Secondary. Grades cycle through
// the grade order, so every class repeats a few grades and those rows are
// summed by aggregation.
func Sample() core.Table {
	records := make([]core.Record, 0, len(sampleCounts))
	for i, count := range sampleCounts {
		division := core.Primary
		if i >= 30 {
			division = core.Secondary
		}
		records = append(records, core.Record{
			Division: division,
			Class:    sampleClasses[i/10],
			Grade:    core.Grades[i%core.NumGrades],
			Count:    count,
		})
	}
	return core.MustTable(records...)
}
