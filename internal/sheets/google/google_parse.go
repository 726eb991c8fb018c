package google

import (
	"fmt"
	"strconv"

	"gradeboard/internal/core"
	"gradeboard/internal/loader"
)

// parseTable converts a values matrix as returned by the Sheets API. The
// first row is the header.
func parseTable(values [][]interface{}, opts loader.Options) (core.Table, error) {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = toStrings(v)
	}
	return loader.FromValues(rows, opts)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
