package grid

import (
	"fmt"
	"math"
	"strings"

	"github.com/bbagrid/bbagrid/pkg/geodist"
)

// Direction is a compass direction towards a block edge.
type Direction string

const (
	West  Direction = "W"
	East  Direction = "E"
	North Direction = "N"
	South Direction = "S"
)

// Distances are the distances in meters from a point to each block edge.
// West and East are measured along the point's parallel, North and South
// along its meridian.
type Distances struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
	South float64 `json:"south"`
}

// Min returns the distance to the closest edge.
func (d Distances) Min() float64 {
	return math.Min(math.Min(d.West, d.East), math.Min(d.North, d.South))
}

// Distances computes edge distances for a point inside b.
func (b Block) Distances(lat, lon float64) Distances {
	return Distances{
		West:  geodist.Haversine(lat, b.Bounds.West, lat, lon),
		East:  geodist.Haversine(lat, b.Bounds.East, lat, lon),
		North: geodist.Haversine(b.Bounds.North, lon, lat, lon),
		South: geodist.Haversine(b.Bounds.South, lon, lat, lon),
	}
}

// Fraction returns how far into the block the point sits, relative to
// BlockSize, measured from the west and north edges.
func (d Distances) Fraction() (x, y float64) {
	return d.West / BlockSize, d.North / BlockSize
}

// Neighbour is the adjacent block across the nearer edge on one axis.
type Neighbour struct {
	Direction Direction `json:"direction"`
	Distance  float64   `json:"distance"`
	Block     BlockID   `json:"block"`
	InGrid    bool      `json:"inGrid"`
}

// Nearest holds the nearer neighbour on the east-west and north-south axes.
type Nearest struct {
	Horizontal Neighbour `json:"horizontal"`
	Vertical   Neighbour `json:"vertical"`
}

// Closest returns whichever of the two neighbours is nearer.
func (n Nearest) Closest() Neighbour {
	if n.Vertical.Distance < n.Horizontal.Distance {
		return n.Vertical
	}
	return n.Horizontal
}

// Nearest picks the nearer edge on each axis. Ties go east and south.
func (t *Table) Nearest(b Block, d Distances) Nearest {
	var n Nearest

	if d.West < d.East {
		n.Horizontal = Neighbour{Direction: West, Distance: d.West, Block: BlockID{Row: b.ID.Row, Col: b.ID.Col - 1}}
	} else {
		n.Horizontal = Neighbour{Direction: East, Distance: d.East, Block: BlockID{Row: b.ID.Row, Col: b.ID.Col + 1}}
	}
	if d.North < d.South {
		n.Vertical = Neighbour{Direction: North, Distance: d.North, Block: BlockID{Row: b.ID.Row - 1, Col: b.ID.Col}}
	} else {
		n.Vertical = Neighbour{Direction: South, Distance: d.South, Block: BlockID{Row: b.ID.Row + 1, Col: b.ID.Col}}
	}

	n.Horizontal.InGrid = t.Contains(n.Horizontal.Block.Row, n.Horizontal.Block.Col)
	n.Vertical.InGrid = t.Contains(n.Vertical.Block.Row, n.Vertical.Block.Col)
	return n
}

// OutsideText is the summary shown when a point is not in any block.
const OutsideText = "Outside the grid"

// Summary renders the block and its nearest neighbours as display text.
// Distances are truncated to whole meters.
func Summary(id BlockID, n Nearest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Block %s\n", id)
	for _, nb := range []Neighbour{n.Horizontal, n.Vertical} {
		fmt.Fprintf(&sb, "\n%dm %s to %s", int(nb.Distance), nb.Direction, nb.Block)
	}
	return sb.String()
}
