package viz

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// frame is a lightweight column-oriented view over CSV records.
type frame struct {
	columns []string
	rows    [][]string
}

func newFrame(records [][]string) frame {
	if len(records) == 0 {
		return frame{}
	}
	return frame{columns: records[0], rows: records[1:]}
}

func (f frame) index(col string) int {
	for i, c := range f.columns {
		if c == col {
			return i
		}
	}
	return -1
}

func (f frame) has(col string) bool { return f.index(col) != -1 }

// cell returns row[idx], or "" when the row is too short. Uploaded CSVs are
// read without a fixed field count, so ragged rows can reach the frame.
func cell(row []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}

// floats returns the parseable numeric values of a column, row order kept.
func (f frame) floats(col string) []float64 {
	idx := f.index(col)
	if idx == -1 {
		return nil
	}
	var out []float64
	for _, row := range f.rows {
		raw, ok := cell(row, idx)
		if !ok {
			continue
		}
		if v, ok := parseFloat(raw); ok {
			out = append(out, v)
		}
	}
	return out
}

type pair struct {
	key string
	sum float64
}

// groupSum sums valCol per distinct byCol value, keeping first-appearance
// order. Rows whose value does not parse are skipped.
func (f frame) groupSum(byCol, valCol string) []pair {
	bi, vi := f.index(byCol), f.index(valCol)
	if bi == -1 || vi == -1 {
		return nil
	}
	sums := map[string]float64{}
	var order []string
	for _, row := range f.rows {
		raw, ok := cell(row, vi)
		if !ok {
			continue
		}
		v, ok := parseFloat(raw)
		if !ok {
			continue
		}
		key, ok := cell(row, bi)
		if !ok {
			continue
		}
		if _, seen := sums[key]; !seen {
			order = append(order, key)
		}
		sums[key] += v
	}
	out := make([]pair, 0, len(order))
	for _, key := range order {
		out = append(out, pair{key: key, sum: sums[key]})
	}
	return out
}

// groupNunique counts distinct valCol values per byCol value.
func (f frame) groupNunique(byCol, valCol string) []pair {
	bi, vi := f.index(byCol), f.index(valCol)
	if bi == -1 || vi == -1 {
		return nil
	}
	distinct := map[string]map[string]bool{}
	var order []string
	for _, row := range f.rows {
		key, ok := cell(row, bi)
		if !ok {
			continue
		}
		value, ok := cell(row, vi)
		if !ok {
			continue
		}
		if _, seen := distinct[key]; !seen {
			distinct[key] = map[string]bool{}
			order = append(order, key)
		}
		distinct[key][value] = true
	}
	out := make([]pair, 0, len(order))
	for _, key := range order {
		out = append(out, pair{key: key, sum: float64(len(distinct[key]))})
	}
	return out
}

// datedRow is one row with its date parsed.
type datedRow struct {
	date time.Time
	row  []string
}

// datedRows parses dateCol day-first and drops rows whose date is invalid.
// The result is sorted chronologically.
func (f frame) datedRows(dateCol string) []datedRow {
	idx := f.index(dateCol)
	if idx == -1 {
		return nil
	}
	var out []datedRow
	for _, row := range f.rows {
		raw, ok := cell(row, idx)
		if !ok {
			continue
		}
		if t, ok := parseDate(raw); ok {
			out = append(out, datedRow{date: t, row: row})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// dateLayouts are tried in order; day-first layouts come before ISO ones.
var dateLayouts = []string{
	"02-01-06",
	"02-01-2006",
	"02/01/2006",
	"02/01/06",
	"2-1-2006",
	"2/1/2006",
	"2006-01-02",
	"2006/01/02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
