package grid

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

// Aggregator collects per-cell series from concurrent workers. Each cell has
// its own lock, so unrelated cells never contend, and a cell's series and sum
// always change together.
type Aggregator struct {
	spec     Spec
	slots    []slot
	recorded atomic.Int64
}

type slot struct {
	mu     sync.RWMutex
	series series.Series
	sum    float64
}

func NewAggregator(spec Spec) *Aggregator {
	return &Aggregator{spec: spec, slots: make([]slot, spec.Size())}
}

// Record stores a copy of s for cell c and recomputes its annual sum.
func (a *Aggregator) Record(c Cell, s series.Series) error {
	if !a.spec.contains(c) {
		return fmt.Errorf("record %s: cell outside %dx%d grid", c, len(a.spec.Slopes), len(a.spec.Azimuths))
	}
	if len(s) != series.HoursPerYear {
		return fmt.Errorf("record %s: series length %d, want %d", c, len(s), series.HoursPerYear)
	}
	cp := s.Clone()
	sum := cp.Sum()

	sl := &a.slots[a.index(c)]
	sl.mu.Lock()
	first := sl.series == nil
	sl.series = cp
	sl.sum = sum
	sl.mu.Unlock()

	if first {
		a.recorded.Add(1)
	}
	return nil
}

// Recorded is the number of distinct cells recorded so far.
func (a *Aggregator) Recorded() int {
	return int(a.recorded.Load())
}

// Snapshot materialises the cells recorded so far into an independent Grid.
func (a *Aggregator) Snapshot() *Grid {
	g := New(a.spec)
	for si := range a.spec.Slopes {
		for ai := range a.spec.Azimuths {
			sl := &a.slots[a.index(Cell{Slope: si, Azimuth: ai})]
			sl.mu.RLock()
			g.Cells[si][ai] = sl.series.Clone()
			g.Sums[si][ai] = sl.sum
			sl.mu.RUnlock()
		}
	}
	return g
}

func (a *Aggregator) index(c Cell) int {
	return c.Slope*len(a.spec.Azimuths) + c.Azimuth
}
