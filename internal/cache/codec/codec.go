// Package codec serialises computed grids into the immutable artifact stored
// by the cache and blob tiers.
//
// Layout: 4-byte magic "PVG1" followed by a zstd frame holding a gob-encoded
// Artifact.
package codec

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/grid"
	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

const (
	Version = 1

	// relative tolerance when re-checking stored annual sums
	sumTolerance = 1e-6
)

var magic = []byte("PVG1")

var (
	ErrBadMagic   = errors.New("not a grid artifact")
	ErrIncomplete = errors.New("grid is incomplete")
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	// EncodeAll/DecodeAll are safe for concurrent use
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4<<30))
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

// Artifact is the persisted form of one grid, indexed [slope][azimuth].
type Artifact struct {
	Version    int
	AzimuthRes int
	SlopeRes   int
	Lat        float64
	Lon        float64
	Year       int
	Azimuths   []int
	Slopes     []int
	Cells      [][]series.Series
	Sums       [][]float64
	CreatedAt  time.Time
}

// FromGrid captures a complete grid under key k.
func FromGrid(k keys.GridKey, g *grid.Grid, now time.Time) (*Artifact, error) {
	if !g.Complete() {
		return nil, ErrIncomplete
	}
	return &Artifact{
		Version:    Version,
		AzimuthRes: k.AzimuthRes,
		SlopeRes:   k.SlopeRes,
		Lat:        k.Lat,
		Lon:        k.Lon,
		Year:       k.Year,
		Azimuths:   g.Azimuths,
		Slopes:     g.Slopes,
		Cells:      g.Cells,
		Sums:       g.Sums,
		CreatedAt:  now.UTC(),
	}, nil
}

func (a *Artifact) Key() keys.GridKey {
	return keys.GridKey{AzimuthRes: a.AzimuthRes, SlopeRes: a.SlopeRes, Lat: a.Lat, Lon: a.Lon, Year: a.Year}
}

// Grid returns the artifact as a grid. The slices are shared, not copied.
func (a *Artifact) Grid() *grid.Grid {
	return &grid.Grid{Azimuths: a.Azimuths, Slopes: a.Slopes, Cells: a.Cells, Sums: a.Sums}
}

func Encode(a *Artifact) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(a); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	out := make([]byte, 0, len(magic)+raw.Len()/4)
	out = append(out, magic...)
	return encoder.EncodeAll(raw.Bytes(), out), nil
}

// Decode parses and validates an artifact. Any returned error means the
// bytes must not be served.
func Decode(b []byte) (*Artifact, error) {
	if !bytes.HasPrefix(b, magic) {
		return nil, ErrBadMagic
	}
	raw, err := decoder.DecodeAll(b[len(magic):], nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&a); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.Version != Version {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	spec, err := grid.Build(a.AzimuthRes, a.SlopeRes)
	if err != nil {
		return fmt.Errorf("artifact resolution: %w", err)
	}
	if !slices.Equal(spec.Azimuths, a.Azimuths) || !slices.Equal(spec.Slopes, a.Slopes) {
		return errors.New("axes do not match resolution")
	}
	if len(a.Cells) != len(a.Slopes) || len(a.Sums) != len(a.Slopes) {
		return fmt.Errorf("slope rows: cells=%d sums=%d want %d", len(a.Cells), len(a.Sums), len(a.Slopes))
	}
	for si := range a.Slopes {
		if len(a.Cells[si]) != len(a.Azimuths) || len(a.Sums[si]) != len(a.Azimuths) {
			return fmt.Errorf("slope row %d: azimuth columns do not match %d", si, len(a.Azimuths))
		}
		for ai, s := range a.Cells[si] {
			if len(s) != series.HoursPerYear {
				return fmt.Errorf("cell (%d,%d): series length %d", si, ai, len(s))
			}
			want, got := s.Sum(), a.Sums[si][ai]
			if math.Abs(want-got) > sumTolerance*math.Max(1, math.Abs(want)) {
				return fmt.Errorf("cell (%d,%d): stored sum %v, series sums to %v", si, ai, got, want)
			}
		}
	}
	return nil
}
