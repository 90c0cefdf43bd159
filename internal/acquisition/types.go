package acquisition

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/codec"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/grid"
)

// Source says which tier answered an acquisition.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceCache    Source = "cache"
	SourceBlob     Source = "blob"
	SourceComputed Source = "computed"
)

var ErrInvalidRequest = errors.New("invalid acquisition request")

// InvalidRequestError rejects a request before any lookup or network call.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// PersistenceError is a failed write after a successful computation. It is
// reported as a warning, never as the acquisition's error.
type PersistenceError struct {
	Stage string // cache, blob, location_index
	Key   string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s to %s: %v", e.Key, e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type Request struct {
	AzimuthRes int
	SlopeRes   int
	Lat        float64
	Lon        float64
	Year       int
}

func (r Request) Key() keys.GridKey {
	return keys.GridKey{AzimuthRes: r.AzimuthRes, SlopeRes: r.SlopeRes, Lat: r.Lat, Lon: r.Lon, Year: r.Year}
}

// Validate builds the grid spec, so resolution errors come back as
// *grid.InvalidResolutionError.
func (r Request) Validate() (grid.Spec, error) {
	spec, err := grid.Build(r.AzimuthRes, r.SlopeRes)
	if err != nil {
		return grid.Spec{}, err
	}
	// NaN compares false against both bounds
	switch {
	case math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90:
		return grid.Spec{}, &InvalidRequestError{Field: "lat", Reason: fmt.Sprintf("%v outside [-90, 90]", r.Lat)}
	case math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180:
		return grid.Spec{}, &InvalidRequestError{Field: "lon", Reason: fmt.Sprintf("%v outside [-180, 180]", r.Lon)}
	case r.Year <= 0:
		return grid.Spec{}, &InvalidRequestError{Field: "year", Reason: fmt.Sprintf("%d is not a year", r.Year)}
	}
	return spec, nil
}

// Summary is the small view of a grid returned to callers: the annual sums
// and axes, never the hourly series. Its slices are shared between callers
// and must be treated as read-only.
type Summary struct {
	CacheKey       string      `json:"cache_key"`
	HourlyShape    [2]int      `json:"hourly_shape"`
	YearlySumShape [2]int      `json:"yearly_sum_shape"`
	YearlySum      [][]float64 `json:"yearly_sum"`
	Azimuths       []int       `json:"azimuths"`
	Slopes         []int       `json:"slopes"`
}

type Result struct {
	Summary
	Source         Source   `json:"source"`
	AcquisitionID  string   `json:"acquisition_id,omitempty"`
	MalformedCells int      `json:"malformed_cells,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func summarize(name string, g *grid.Grid) Summary {
	s, a := g.Shape()
	return Summary{
		CacheKey:       name,
		HourlyShape:    [2]int{s, a},
		YearlySumShape: [2]int{len(g.Sums), rowLen(g.Sums)},
		YearlySum:      g.SumsCopy(),
		Azimuths:       append([]int(nil), g.Azimuths...),
		Slopes:         append([]int(nil), g.Slopes...),
	}
}

func summarizeArtifact(a *codec.Artifact) Summary {
	return summarize(a.Key().String(), a.Grid())
}

func rowLen(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}
