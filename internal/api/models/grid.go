package models

// Bounds are a block's edges in degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridSummary describes the loaded grid table.
type GridSummary struct {
	Name      string    `json:"name"`
	Rows      int       `json:"rows"`
	Blocks    int       `json:"blocks"`
	BlockSize float64   `json:"blockSizeM"`
	Extent    Bounds    `json:"extent"`
	Spans     []RowSpan `json:"spans"`
}

// RowSpan lists the active columns of a row.
type RowSpan struct {
	Row   int `json:"row"`
	Start int `json:"start"`
	Count int `json:"count"`
}

// Block describes one grid block.
type Block struct {
	ID     string `json:"id"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Bounds Bounds `json:"bounds"`
	Center Point  `json:"center"`
}
