package polyline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/pkg/polyline"
)

func TestDecode_GoogleExample(t *testing.T) {
	coords := polyline.Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.Len(t, coords, 3)

	expected := []polyline.Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	}
	for i := range expected {
		assert.InDelta(t, expected[i].Lat, coords[i].Lat, 1e-5)
		assert.InDelta(t, expected[i].Lon, coords[i].Lon, 1e-5)
	}
}

func TestEncode_GoogleExample(t *testing.T) {
	encoded := polyline.Encode([]polyline.Coordinate{
		{Lat: 38.5, Lon: -120.2},
		{Lat: 40.7, Lon: -120.95},
		{Lat: 43.252, Lon: -126.453},
	})
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", encoded)
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, "", polyline.Encode(nil))
	assert.Nil(t, polyline.Decode(""))
}

func TestDecode_TruncatedInput(t *testing.T) {
	// The second pair is cut off after its latitude.
	coords := polyline.Decode("_p~iF~ps|U_ulL")
	require.Len(t, coords, 1)
	assert.InDelta(t, 38.5, coords[0].Lat, 1e-5)
}

func TestEncodeDecode_Track(t *testing.T) {
	track := []polyline.Coordinate{
		{Lat: 35.88123, Lon: -106.30112},
		{Lat: 35.88201, Lon: -106.29987},
		{Lat: 35.88355, Lon: -106.29801},
	}

	decoded := polyline.Decode(polyline.Encode(track))
	require.Len(t, decoded, len(track))
	for i := range track {
		assert.InDelta(t, track[i].Lat, decoded[i].Lat, 1e-5)
		assert.InDelta(t, track[i].Lon, decoded[i].Lon, 1e-5)
	}
}

func TestLength(t *testing.T) {
	assert.Zero(t, polyline.Length(nil))
	assert.Zero(t, polyline.Length([]polyline.Coordinate{{Lat: 35.9, Lon: -106.3}}))

	track := []polyline.Coordinate{
		{Lat: 35.0, Lon: -106.0},
		{Lat: 35.5, Lon: -106.0},
		{Lat: 36.0, Lon: -106.0},
	}
	assert.InDelta(t, 111195, polyline.Length(track), 5)
}
