package grid

import (
	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

// Grid is a materialised set of per-cell series with their annual sums,
// indexed [slope][azimuth].
type Grid struct {
	Azimuths []int
	Slopes   []int
	Cells    [][]series.Series
	Sums     [][]float64
}

// New allocates an empty grid for spec; unrecorded cells hold a nil series.
func New(spec Spec) *Grid {
	g := &Grid{
		Azimuths: append([]int(nil), spec.Azimuths...),
		Slopes:   append([]int(nil), spec.Slopes...),
		Cells:    make([][]series.Series, len(spec.Slopes)),
		Sums:     make([][]float64, len(spec.Slopes)),
	}
	for s := range spec.Slopes {
		g.Cells[s] = make([]series.Series, len(spec.Azimuths))
		g.Sums[s] = make([]float64, len(spec.Azimuths))
	}
	return g
}

// Shape returns (num_slopes, num_azimuths).
func (g *Grid) Shape() (int, int) {
	if g == nil {
		return 0, 0
	}
	return len(g.Slopes), len(g.Azimuths)
}

// Complete reports whether every cell holds a series.
func (g *Grid) Complete() bool {
	if g == nil || len(g.Cells) == 0 {
		return false
	}
	for _, row := range g.Cells {
		for _, s := range row {
			if s == nil {
				return false
			}
		}
	}
	return true
}

// SumsCopy returns a deep copy of the annual sum matrix.
func (g *Grid) SumsCopy() [][]float64 {
	out := make([][]float64, len(g.Sums))
	for i, row := range g.Sums {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
