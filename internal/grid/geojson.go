package grid

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Polygon returns the block outline as a closed lon/lat ring.
func (b Block) Polygon() *geom.Polygon {
	bb := b.Bounds
	flat := []float64{
		bb.West, bb.North,
		bb.East, bb.North,
		bb.East, bb.South,
		bb.West, bb.South,
		bb.West, bb.North,
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
}

// FeatureCollection builds a GeoJSON collection with one polygon per block.
func (t *Table) FeatureCollection() *geojson.FeatureCollection {
	blocks := t.Blocks()
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(blocks)),
	}

	ext := t.Extent()
	fc.BBox = geom.NewBounds(geom.XY).Set(ext.West, ext.South, ext.East, ext.North)

	for _, b := range blocks {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       b.ID.String(),
			Geometry: b.Polygon(),
			Properties: map[string]interface{}{
				"row":   b.ID.Row,
				"col":   b.ID.Col,
				"table": t.name,
			},
		})
	}
	return fc
}

// GeoJSON encodes the table as a GeoJSON FeatureCollection.
func (t *Table) GeoJSON() ([]byte, error) {
	data, err := json.Marshal(t.FeatureCollection())
	if err != nil {
		return nil, fmt.Errorf("encode grid geojson: %w", err)
	}
	return data, nil
}
