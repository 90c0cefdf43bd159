// Package grid defines the slope/azimuth sampling grid and the concurrent
// accumulator that collects one hourly series per grid cell.
package grid

import (
	"errors"
	"fmt"
)

// Fixed sampling bounds in degrees. Azimuth follows the PVGIS "aspect"
// convention (0 = south, -90 = east, 90 = west).
const (
	MinAzimuth = -90
	MaxAzimuth = 90
	MinSlope   = 0
	MaxSlope   = 90
)

var ErrInvalidResolution = errors.New("invalid resolution")

type InvalidResolutionError struct {
	AzimuthRes int
	SlopeRes   int
}

func (e *InvalidResolutionError) Error() string {
	return fmt.Sprintf("invalid resolution: azimuth_res=%d slope_res=%d (both must be > 0)", e.AzimuthRes, e.SlopeRes)
}

func (e *InvalidResolutionError) Is(target error) bool { return target == ErrInvalidResolution }

// Cell addresses one grid sample; Slope is the outer index.
type Cell struct {
	Slope   int
	Azimuth int
}

func (c Cell) String() string {
	return fmt.Sprintf("(s=%d,a=%d)", c.Slope, c.Azimuth)
}

// Spec holds the ordered sample points derived from the resolutions.
type Spec struct {
	AzimuthRes int
	SlopeRes   int
	Azimuths   []int
	Slopes     []int
}

// Build derives the sample points for the given resolution steps.
func Build(azimuthRes, slopeRes int) (Spec, error) {
	if azimuthRes <= 0 || slopeRes <= 0 {
		return Spec{}, &InvalidResolutionError{AzimuthRes: azimuthRes, SlopeRes: slopeRes}
	}
	return Spec{
		AzimuthRes: azimuthRes,
		SlopeRes:   slopeRes,
		Azimuths:   steps(MinAzimuth, MaxAzimuth, azimuthRes),
		Slopes:     steps(MinSlope, MaxSlope, slopeRes),
	}, nil
}

func steps(lo, hi, step int) []int {
	out := make([]int, 0, (hi-lo)/step+1)
	for v := lo; v <= hi; v += step {
		out = append(out, v)
	}
	return out
}

// Shape returns (num_slopes, num_azimuths).
func (s Spec) Shape() (int, int) {
	return len(s.Slopes), len(s.Azimuths)
}

// Size is the number of cells.
func (s Spec) Size() int {
	return len(s.Slopes) * len(s.Azimuths)
}

// Cells lists every cell in slope-major, azimuth-minor order.
func (s Spec) Cells() []Cell {
	out := make([]Cell, 0, s.Size())
	for si := range s.Slopes {
		for ai := range s.Azimuths {
			out = append(out, Cell{Slope: si, Azimuth: ai})
		}
	}
	return out
}

// Angles returns the slope and azimuth in degrees for a cell.
func (s Spec) Angles(c Cell) (slope, azimuth int) {
	return s.Slopes[c.Slope], s.Azimuths[c.Azimuth]
}

func (s Spec) contains(c Cell) bool {
	return c.Slope >= 0 && c.Slope < len(s.Slopes) && c.Azimuth >= 0 && c.Azimuth < len(s.Azimuths)
}
