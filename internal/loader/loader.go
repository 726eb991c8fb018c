// Package loader builds core.Tables from the built-in sample, CSV and XLSX
// uploads, and spreadsheet value ranges.
package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gradeboard/internal/core"
)

// Required column names, matched case-sensitively.
const (
	ColDivision = "Division"
	ColClass    = "Class"
	ColGrade    = "Grade"
	ColCount    = "Count"
)

// Columns is the header written by WriteCSV and WriteXLSX.
var Columns = []string{ColDivision, ColClass, ColGrade, ColCount}

var (
	errNegativeCount = errors.New("count must be a non-negative integer")
	errCountTooLarge = fmt.Errorf("count must not exceed %d", core.MaxCount)
)

// Options tunes parsing.
type Options struct {
	// StrictDivisions rejects divisions other than Primary and Secondary.
	StrictDivisions bool
	// MaxRows limits data rows; 0 means unlimited.
	MaxRows int
}

// DefaultOptions rejects unknown divisions and caps uploads at 10000 rows.
func DefaultOptions() Options {
	return Options{StrictDivisions: true, MaxRows: 10000}
}

// LoadFromFile parses CSV bytes with DefaultOptions.
func LoadFromFile(b []byte) (core.Table, error) {
	return FromCSV(bytes.NewReader(b), DefaultOptions())
}

// Load picks the parser from the file name extension.
func Load(filename string, b []byte, opts Options) (core.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FromXLSX(b, opts)
	default:
		return FromCSV(bytes.NewReader(b), opts)
	}
}

// FromCSV reads a header row followed by data rows.
func FromCSV(r io.Reader, opts Options) (core.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return core.Table{}, &FormatError{Reason: fmt.Sprintf("malformed CSV at line %d: %v", perr.Line, perr.Err)}
		}
		return core.Table{}, fmt.Errorf("read csv: %w", err)
	}
	return FromValues(rows, opts)
}

// FromValues parses a header row plus data rows. Blank rows are skipped.
func FromValues(rows [][]string, opts Options) (core.Table, error) {
	if len(rows) == 0 {
		return core.Table{}, &FormatError{Reason: "file is empty: a header row is required"}
	}
	cols, err := headerIndex(rows[0])
	if err != nil {
		return core.Table{}, err
	}

	records := make([]core.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		if opts.MaxRows > 0 && len(records) >= opts.MaxRows {
			return core.Table{}, &FormatError{Reason: fmt.Sprintf("too many rows: limit is %d", opts.MaxRows)}
		}
		rec, err := parseRow(row, cols, line, opts)
		if err != nil {
			return core.Table{}, err
		}
		records = append(records, rec)
	}

	return core.NewTable(records...)
}

type columnIndex struct {
	division, class, grade, count int
}

func headerIndex(header []string) (columnIndex, error) {
	pos := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	var missing []string
	lookup := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	idx := columnIndex{
		division: lookup(ColDivision),
		class:    lookup(ColClass),
		grade:    lookup(ColGrade),
		count:    lookup(ColCount),
	}
	if len(missing) > 0 {
		return columnIndex{}, &FormatError{Missing: missing}
	}
	return idx, nil
}

func parseRow(row []string, cols columnIndex, line int, opts Options) (core.Record, error) {
	divStr := cell(row, cols.division)
	division, err := core.ParseDivision(divStr)
	if err != nil && opts.StrictDivisions {
		return core.Record{}, &ValueError{Line: line, Column: ColDivision, Value: divStr, Err: err}
	}

	class := cell(row, cols.class)
	if class == "" {
		return core.Record{}, &ValueError{Line: line, Column: ColClass, Value: class, Err: core.ErrEmptyClass}
	}

	gradeStr := cell(row, cols.grade)
	grade, err := core.ParseGrade(gradeStr)
	if err != nil {
		return core.Record{}, &ValueError{Line: line, Column: ColGrade, Value: gradeStr, Err: err}
	}

	countStr := cell(row, cols.count)
	count, err := parseCount(countStr)
	if err != nil {
		return core.Record{}, &ValueError{Line: line, Column: ColCount, Value: countStr, Err: err}
	}

	return core.Record{Division: division, Class: class, Grade: grade, Count: count}, nil
}

// parseCount accepts base-10 integers up to core.MaxCount; spreadsheet
// exports such as "12.0" are accepted when the fraction is zero.
func parseCount(s string) (int64, error) {
	n, err := parseWholeNumber(s)
	if err != nil {
		return 0, err
	}
	if n > core.MaxCount {
		return 0, errCountTooLarge
	}
	return n, nil
}

func parseWholeNumber(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errNegativeCount
		}
		return n, nil
	} else if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(s, "-") {
		return 0, errCountTooLarge
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" && whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err == nil && n >= 0 && !strings.HasPrefix(whole, "-") {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(whole, "-") {
			return 0, errCountTooLarge
		}
	}
	return 0, errNegativeCount
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes t in the upload format, one row per record.
func WriteCSV(w io.Writer, t core.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range t.Records() {
		if err := cw.Write(recordFields(r)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordFields(r core.Record) []string {
	return []string{string(r.Division), r.Class, r.Grade.String(), strconv.FormatInt(r.Count, 10)}
}
