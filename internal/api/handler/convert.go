package handler

import (
	"math"

	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/auth"
	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/grid"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/poll"
)

// round1 keeps responses readable; GPS fixes are not better than a meter.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func toBounds(b grid.Bounds) models.Bounds {
	return models.Bounds{North: b.North, South: b.South, West: b.West, East: b.East}
}

func toBlock(b grid.Block) models.Block {
	c := b.Bounds.Center()
	return models.Block{
		ID:     b.ID.String(),
		Row:    b.ID.Row,
		Col:    b.ID.Col,
		Bounds: toBounds(b.Bounds),
		Center: models.Point{Lat: c.Lat, Lon: c.Lon},
	}
}

func toGridSummary(t *grid.Table) models.GridSummary {
	spans := t.Spans()
	out := models.GridSummary{
		Name:      t.Name(),
		Rows:      t.Rows(),
		Blocks:    t.BlockCount(),
		BlockSize: grid.BlockSize,
		Extent:    toBounds(t.Extent()),
		Spans:     make([]models.RowSpan, 0, len(spans)),
	}
	for i, s := range spans {
		out.Spans = append(out.Spans, models.RowSpan{Row: i + 1, Start: s.Start, Count: s.Count})
	}
	return out
}

func toPollAdvice(a poll.Advice) models.PollAdvice {
	return models.PollAdvice{
		IntervalMs:        a.Interval.Milliseconds(),
		MinDistanceChange: round1(a.MinDistanceChange),
	}
}

func toNeighbour(n grid.Neighbour) models.Neighbour {
	return models.Neighbour{
		Direction: string(n.Direction),
		Block:     n.Block.String(),
		Distance:  round1(n.Distance),
		InGrid:    n.InGrid,
	}
}

func toLocateResponse(r *locator.Report) models.LocateResponse {
	out := models.LocateResponse{
		Lat:     r.Lat,
		Lon:     r.Lon,
		Mode:    string(r.Mode),
		InGrid:  r.InGrid,
		Summary: r.Summary,
		Poll:    toPollAdvice(r.Advice),
	}
	if !r.InGrid {
		return out
	}

	block := toBlock(*r.Block)
	out.Block = &block
	if r.Distances != nil {
		out.Distances = &models.Distances{
			North: round1(r.Distances.North),
			South: round1(r.Distances.South),
			West:  round1(r.Distances.West),
			East:  round1(r.Distances.East),
		}
	}
	if r.Nearest != nil {
		out.Nearest = []models.Neighbour{toNeighbour(r.Nearest.Horizontal), toNeighbour(r.Nearest.Vertical)}
	}
	fx, fy := r.FractionX, r.FractionY
	out.FractionX, out.FractionY = &fx, &fy
	return out
}

func blockString(id *grid.BlockID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toFix(f *device.Fix) *models.Fix {
	if f == nil {
		return nil
	}
	return &models.Fix{
		Lat:        f.Lat,
		Lon:        f.Lon,
		Accuracy:   f.Accuracy,
		Altitude:   f.Altitude,
		Block:      blockString(f.Block),
		RecordedAt: models.Timestamp(f.RecordedAt),
	}
}

func toDevice(d *device.Device) models.Device {
	return models.Device{
		ID:        d.ID,
		Name:      d.Name,
		Mode:      string(d.Mode),
		Block:     blockString(d.Block()),
		LastFix:   toFix(d.LastFix),
		CreatedAt: models.Timestamp(d.CreatedAt),
		UpdatedAt: models.Timestamp(d.UpdatedAt),
	}
}

func toTrack(t *device.Track) models.Track {
	out := models.Track{
		DeviceID: t.DeviceID,
		Points:   t.Points,
		Polyline: t.Polyline,
		Length:   round1(t.Length),
		Blocks:   device.BlocksVisited(t),
	}
	if t.Points > 0 {
		from, to := models.Timestamp(t.From), models.Timestamp(t.To)
		out.From, out.To = &from, &to
	}
	return out
}

func toTokenResponse(t *auth.Token) models.TokenResponse {
	return models.TokenResponse{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn,
		ExpiresAt:   models.Timestamp(t.ExpiresAt),
	}
}
