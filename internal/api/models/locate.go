package models

// LocateRequest is the request body for POST /v1/locate.
type LocateRequest struct {
	Lat  *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Mode string   `json:"mode,omitempty" validate:"omitempty,oneof=FOREGROUND BACKGROUND"`
}

// Distances are meters from a position to each block edge.
type Distances struct {
	North float64 `json:"northM"`
	South float64 `json:"southM"`
	West  float64 `json:"westM"`
	East  float64 `json:"eastM"`
}

// Neighbour is the nearest block across one edge.
type Neighbour struct {
	Direction string  `json:"direction"`
	Block     string  `json:"block"`
	Distance  float64 `json:"distanceM"`
	InGrid    bool    `json:"inGrid"`
}

// PollAdvice tells a device when to read its position next.
type PollAdvice struct {
	IntervalMs        int64   `json:"intervalMs"`
	MinDistanceChange float64 `json:"minDistanceChangeM"`
}

// LocateResponse describes where a position falls in the grid.
type LocateResponse struct {
	Lat       float64     `json:"lat"`
	Lon       float64     `json:"lon"`
	Mode      string      `json:"mode"`
	InGrid    bool        `json:"inGrid"`
	Block     *Block      `json:"block,omitempty"`
	Distances *Distances  `json:"distances,omitempty"`
	Nearest   []Neighbour `json:"nearest,omitempty"`
	FractionX *float64    `json:"fractionX,omitempty"`
	FractionY *float64    `json:"fractionY,omitempty"`
	Summary   string      `json:"summary"`
	Poll      PollAdvice  `json:"poll"`
}
