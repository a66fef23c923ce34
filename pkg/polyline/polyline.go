// Package polyline encodes device tracks with Google's polyline algorithm.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"

	"github.com/bbagrid/bbagrid/pkg/geodist"
)

// precision is the fixed-point scale of the encoding (5 decimal places).
const precision = 1e5

// Coordinate is a track point in decimal degrees.
type Coordinate = geodist.Point

// Encode encodes coordinates into a polyline string.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(coords)*6)
	var prevLat, prevLon int
	for _, c := range coords {
		lat := int(math.Round(c.Lat * precision))
		lon := int(math.Round(c.Lon * precision))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

// Decode decodes a polyline string. A truncated trailing pair is dropped.
func Decode(encoded string) []Coordinate {
	if encoded == "" {
		return nil
	}

	var (
		coords   []Coordinate
		lat, lon int
		index    int
	)
	for index < len(encoded) {
		dLat, next, ok := readValue(encoded, index)
		if !ok {
			break
		}
		dLon, next, ok := readValue(encoded, next)
		if !ok {
			break
		}
		index = next
		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / precision,
			Lon: float64(lon) / precision,
		})
	}
	return coords
}

// Length returns the summed haversine length of the track in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += geodist.Distance(coords[i-1], coords[i])
	}
	return total
}

func appendValue(buf []byte, v int) []byte {
	if v < 0 {
		v = ^(v << 1)
	} else {
		v <<= 1
	}
	for v >= 0x20 {
		buf = append(buf, byte((v&0x1f)|0x20)+63)
		v >>= 5
	}
	return append(buf, byte(v)+63)
}

// readValue reads one zig-zag value starting at index. ok is false when the
// input ends in the middle of a value.
func readValue(encoded string, index int) (value, next int, ok bool) {
	var result, shift int
	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), index, true
			}
			return result >> 1, index, true
		}
	}
	return 0, index, false
}
