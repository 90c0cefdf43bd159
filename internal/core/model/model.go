// Package model defines the request and response shapes of the HTTP API.
package model

import "fmt"

// GridQuery is a parsed /grid or /getData request.
type GridQuery struct {
	AzimuthRes int
	SlopeRes   int
	Lat        float64
	Lon        float64
	Year       int
}

func (q GridQuery) String() string {
	return fmt.Sprintf("azires=%d sloperes=%d lat=%.6f lon=%.6f year=%d", q.AzimuthRes, q.SlopeRes, q.Lat, q.Lon, q.Year)
}

// NearbyQuery asks for grids within K rings of a location's cell.
type NearbyQuery struct {
	Lat float64
	Lon float64
	K   int
}

type NearbyResponse struct {
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	K    int      `json:"k"`
	Keys []string `json:"cache_keys"`
}
