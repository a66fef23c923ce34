package grid

import (
	"fmt"

	"github.com/bbagrid/bbagrid/pkg/geodist"
)

// BlockID identifies a block by row and column.
type BlockID struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String renders the block the way survey sheets label it: row digits
// followed by column digits.
func (id BlockID) String() string {
	return fmt.Sprintf("%d%d", id.Row, id.Col)
}

// Bounds are the edges of a block. North and South are latitudes, West and
// East are longitudes.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Contains applies the half-open inclusion rule. A point on a shared edge
// belongs to the block to the south or east.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat <= b.North && lat > b.South && lon >= b.West && lon < b.East
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() geodist.Point {
	return geodist.Point{
		Lat: (b.North + b.South) / 2,
		Lon: (b.West + b.East) / 2,
	}
}

// Block is an active grid block.
type Block struct {
	ID     BlockID `json:"id"`
	Bounds Bounds  `json:"bounds"`
}

func (t *Table) bounds(row, col int) Bounds {
	nw := t.corners[row][col]
	ne := t.corners[row][col+1]
	sw := t.corners[row+1][col]
	se := t.corners[row+1][col+1]
	return Bounds{
		West:  (nw.Lon + sw.Lon) / 2,
		East:  (ne.Lon + se.Lon) / 2,
		North: (nw.Lat + ne.Lat) / 2,
		South: (sw.Lat + se.Lat) / 2,
	}
}

// Locate returns the block containing (lat, lon). Rows and their active
// columns are scanned in order and the first match wins.
func (t *Table) Locate(lat, lon float64) (Block, bool) {
	for row := 1; row <= len(t.spans); row++ {
		span := t.spans[row-1]
		for col := span.Start; col < span.End(); col++ {
			b := t.bounds(row, col)
			if b.Contains(lat, lon) {
				return Block{ID: BlockID{Row: row, Col: col}, Bounds: b}, true
			}
		}
	}
	return Block{}, false
}

// Block returns the active block at (row, col).
func (t *Table) Block(row, col int) (Block, error) {
	if !t.Contains(row, col) {
		return Block{}, fmt.Errorf("%w: %d,%d", ErrBlockNotFound, row, col)
	}
	return Block{ID: BlockID{Row: row, Col: col}, Bounds: t.bounds(row, col)}, nil
}

// Blocks returns every active block in scan order.
func (t *Table) Blocks() []Block {
	blocks := make([]Block, 0, t.BlockCount())
	for row := 1; row <= len(t.spans); row++ {
		span := t.spans[row-1]
		for col := span.Start; col < span.End(); col++ {
			blocks = append(blocks, Block{ID: BlockID{Row: row, Col: col}, Bounds: t.bounds(row, col)})
		}
	}
	return blocks
}

// Extent returns the bounding box of all active blocks.
func (t *Table) Extent() Bounds {
	blocks := t.Blocks()
	if len(blocks) == 0 {
		return Bounds{}
	}
	ext := blocks[0].Bounds
	for _, b := range blocks[1:] {
		ext.North = max(ext.North, b.Bounds.North)
		ext.South = min(ext.South, b.Bounds.South)
		ext.West = min(ext.West, b.Bounds.West)
		ext.East = max(ext.East, b.Bounds.East)
	}
	return ext
}
