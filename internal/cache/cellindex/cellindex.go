// Package cellindex records which grids were computed near a location, keyed
// by the H3 cell of the grid's coordinates.
package cellindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/mapper"
)

// CellIndex maps an H3 cell to the set of grid keys stored for it.
type CellIndex interface {
	AddKey(ctx context.Context, res int, cell, gridKey string) error
	Keys(ctx context.Context, res int, cells []string) ([]string, error)
}

type redisCellIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) CellIndex {
	return &redisCellIndex{cli: cli}
}

func (ci *redisCellIndex) AddKey(ctx context.Context, res int, cell, gridKey string) error {
	key := keys.LocationIndexKey(res, cell)
	if err := ci.cli.SAdd(ctx, key, gridKey); err != nil {
		return fmt.Errorf("cellindex redis SADD %q: %w", key, err)
	}
	return nil
}

// Keys returns the union of grid keys across cells, sorted.
func (ci *redisCellIndex) Keys(ctx context.Context, res int, cells []string) ([]string, error) {
	if len(cells) == 0 {
		return nil, nil
	}
	setKeys := make([]string, len(cells))
	for i, c := range cells {
		setKeys[i] = keys.LocationIndexKey(res, c)
	}
	out, err := ci.cli.SUnion(ctx, setKeys...)
	if err != nil {
		return nil, fmt.Errorf("cellindex redis SUNION: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Locator ties a cell index to a fixed H3 resolution.
type Locator struct {
	idx  CellIndex
	mapr mapper.Interface
	res  int
}

func NewLocator(idx CellIndex, mapr mapper.Interface, res int) *Locator {
	return &Locator{idx: idx, mapr: mapr, res: res}
}

// Record files gridKey under the cell containing (lat, lon).
func (l *Locator) Record(ctx context.Context, lat, lon float64, gridKey string) error {
	cell, err := l.mapr.LocationCell(lat, lon, l.res)
	if err != nil {
		return fmt.Errorf("locate grid: %w", err)
	}
	return l.idx.AddKey(ctx, l.res, cell, gridKey)
}

// Nearby lists grid keys recorded within k rings of (lat, lon).
func (l *Locator) Nearby(ctx context.Context, lat, lon float64, k int) ([]string, error) {
	cell, err := l.mapr.LocationCell(lat, lon, l.res)
	if err != nil {
		return nil, fmt.Errorf("locate query: %w", err)
	}
	ring, err := l.mapr.Neighbourhood(cell, k)
	if err != nil {
		return nil, fmt.Errorf("neighbourhood of %s: %w", cell, err)
	}
	return l.idx.Keys(ctx, l.res, ring)
}
