// Package upstream wraps the free A-share feed behind one method per
// logical dataset, each returning a uniform columnar Frame. The adapter is
// the only place that knows the feed's wire shapes; everything above it
// sees canonical column names and tagged error kinds.
package upstream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/minionszyw/leeksaver/internal/errs"
)

// Frame is a columnar result set: named columns over string cells. Cells
// stay strings until the Transformer typecasts them, so a malformed value
// is a per-row rejection rather than a frame-wide parse failure.
type Frame struct {
	columns []string
	index   map[string]int
	cells   [][]string
}

// NewFrame creates an empty frame with the given column names.
func NewFrame(columns ...string) *Frame {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Frame{columns: columns, index: idx}
}

// Columns returns the column names in declaration order.
func (f *Frame) Columns() []string { return f.columns }

// Len returns the row count.
func (f *Frame) Len() int { return len(f.cells) }

// Append adds one row; the cell count must match the column count.
func (f *Frame) Append(cells ...string) {
	if len(cells) != len(f.columns) {
		panic(fmt.Sprintf("frame: appended %d cells to %d columns", len(cells), len(f.columns)))
	}
	f.cells = append(f.cells, cells)
}

// HasColumn reports whether the frame carries the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Cell returns the raw string cell at (row, column). A missing column
// returns "", false rather than panicking: lookup is by name so upstream
// drift degrades to a per-cell miss, not a crash.
func (f *Frame) Cell(row int, column string) (string, bool) {
	i, ok := f.index[column]
	if !ok || row < 0 || row >= len(f.cells) {
		return "", false
	}
	return f.cells[row][i], true
}

// Str returns the trimmed cell value, "" when absent or null-ish.
func (f *Frame) Str(row int, column string) string {
	v, ok := f.Cell(row, column)
	if !ok {
		return ""
	}
	v = strings.TrimSpace(v)
	if isNull(v) {
		return ""
	}
	return v
}

// Float parses the cell as a float64. The second return is false when the
// cell is absent, null or unparseable.
func (f *Frame) Float(row int, column string) (float64, bool) {
	v := f.Str(row, column)
	if v == "" {
		return 0, false
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return x, true
}

// Int parses the cell as an int64, tolerating a float-formatted integer
// (the feed serializes share volumes as "12345.0").
func (f *Frame) Int(row int, column string) (int64, bool) {
	v := f.Str(row, column)
	if v == "" {
		return 0, false
	}
	if x, err := strconv.ParseInt(v, 10, 64); err == nil {
		return x, true
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int64(x), true
}

// Require raises SchemaDrift when any of the named columns is missing.
// An unexpected extra column is not an error; the caller logs it.
func (f *Frame) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !f.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errs.New(errs.SchemaDrift,
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// Extra returns columns present in the frame but not in expected, for the
// drift log line.
func (f *Frame) Extra(expected ...string) []string {
	want := make(map[string]bool, len(expected))
	for _, c := range expected {
		want[c] = true
	}
	var out []string
	for _, c := range f.columns {
		if !want[c] {
			out = append(out, c)
		}
	}
	return out
}

func isNull(v string) bool {
	switch strings.ToLower(v) {
	case "", "null", "none", "nan", "-", "--":
		return true
	}
	return false
}
