// Package grid maps coordinates onto a fixed survey grid described by a
// table of NW block corners.
package grid

import (
	"errors"
	"fmt"
)

// Table errors.
var (
	ErrInvalidTable  = errors.New("invalid grid table")
	ErrBlockNotFound = errors.New("block not in grid")
)

// Corner is the NW corner of a grid cell in decimal degrees.
// The zero value marks a cell that does not exist.
type Corner struct {
	Lon float64 `yaml:"lon" json:"lon"`
	Lat float64 `yaml:"lat" json:"lat"`
}

// IsSentinel reports whether c is the (0,0) padding entry.
func (c Corner) IsSentinel() bool {
	return c.Lon == 0 && c.Lat == 0
}

// RowSpan is the run of active columns in one grid row.
type RowSpan struct {
	Start int `yaml:"start" json:"start"`
	Count int `yaml:"count" json:"count"`
}

// End returns one past the last active column.
func (s RowSpan) End() int {
	return s.Start + s.Count
}

// Table is an immutable grid definition. Rows are numbered from 1; row r
// reads corners from rows r and r+1 of the corner array.
type Table struct {
	name    string
	corners [][]Corner
	spans   []RowSpan
}

// NewTable validates and builds a table. spans[i] describes row i+1.
func NewTable(name string, corners [][]Corner, spans []RowSpan) (*Table, error) {
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidTable)
	}
	if len(corners) < len(spans)+2 {
		return nil, fmt.Errorf("%w: %d rows need %d corner rows, have %d",
			ErrInvalidTable, len(spans), len(spans)+2, len(corners))
	}

	for i, span := range spans {
		row := i + 1
		if span.Start < 0 || span.Count < 0 {
			return nil, fmt.Errorf("%w: row %d has negative span", ErrInvalidTable, row)
		}
		for col := span.Start; col < span.End(); col++ {
			for _, rc := range [][2]int{{row, col}, {row + 1, col}, {row, col + 1}, {row + 1, col + 1}} {
				r, c := rc[0], rc[1]
				if c >= len(corners[r]) {
					return nil, fmt.Errorf("%w: block %d,%d reads missing corner %d,%d",
						ErrInvalidTable, row, col, r, c)
				}
				if corners[r][c].IsSentinel() {
					return nil, fmt.Errorf("%w: block %d,%d reads sentinel corner %d,%d",
						ErrInvalidTable, row, col, r, c)
				}
			}
		}
	}

	cp := make([][]Corner, len(corners))
	for i := range corners {
		cp[i] = append([]Corner(nil), corners[i]...)
	}

	return &Table{
		name:    name,
		corners: cp,
		spans:   append([]RowSpan(nil), spans...),
	}, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Rows returns the number of block rows.
func (t *Table) Rows() int {
	return len(t.spans)
}

// Span returns the active columns of row (1-based).
func (t *Table) Span(row int) (RowSpan, bool) {
	if row < 1 || row > len(t.spans) {
		return RowSpan{}, false
	}
	return t.spans[row-1], true
}

// Contains reports whether (row, col) is an active block.
func (t *Table) Contains(row, col int) bool {
	span, ok := t.Span(row)
	if !ok {
		return false
	}
	return col >= span.Start && col < span.End()
}

// BlockCount returns the number of active blocks.
func (t *Table) BlockCount() int {
	n := 0
	for _, s := range t.spans {
		n += s.Count
	}
	return n
}

// Spans returns a copy of the row spans.
func (t *Table) Spans() []RowSpan {
	return append([]RowSpan(nil), t.spans...)
}

// Corners returns a copy of the corner array.
func (t *Table) Corners() [][]Corner {
	cp := make([][]Corner, len(t.corners))
	for i := range t.corners {
		cp[i] = append([]Corner(nil), t.corners[i]...)
	}
	return cp
}
