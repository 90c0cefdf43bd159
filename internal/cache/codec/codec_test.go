package codec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/grid"
	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

func testGrid(t *testing.T, azRes, slopeRes int) (keys.GridKey, *grid.Grid) {
	t.Helper()
	spec, err := grid.Build(azRes, slopeRes)
	require.NoError(t, err)
	agg := grid.NewAggregator(spec)
	for _, c := range spec.Cells() {
		s := series.Zero()
		for h := 6; h < 18; h++ {
			s[h] = float64(c.Slope*100+c.Azimuth) + float64(h)/10
		}
		require.NoError(t, agg.Record(c, s))
	}
	k := keys.GridKey{AzimuthRes: azRes, SlopeRes: slopeRes, Lat: 48.85, Lon: 2.35, Year: 2019}
	return k, agg.Snapshot()
}

func TestRoundTrip(t *testing.T) {
	k, g := testGrid(t, 30, 30)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a, err := FromGrid(k, g, now)
	require.NoError(t, err)
	b, err := Encode(a)
	require.NoError(t, err)
	assert.Equal(t, "PVG1", string(b[:4]))

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, k, got.Key())
	assert.True(t, got.CreatedAt.Equal(now))

	gg := got.Grid()
	s, az := gg.Shape()
	assert.Equal(t, 4, s)
	assert.Equal(t, 7, az)
	assert.Equal(t, g.Cells, gg.Cells)
	assert.Equal(t, g.Sums, gg.Sums)
}

func TestRoundTrip_AllZeroCells(t *testing.T) {
	spec, err := grid.Build(90, 90)
	require.NoError(t, err)
	agg := grid.NewAggregator(spec)
	for _, c := range spec.Cells() {
		require.NoError(t, agg.Record(c, series.Zero()))
	}
	k := keys.GridKey{AzimuthRes: 90, SlopeRes: 90, Year: 2019}
	a, err := FromGrid(k, agg.Snapshot(), time.Now())
	require.NoError(t, err)
	b, err := Encode(a)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, got.Cells[1][2], series.HoursPerYear)
	assert.Zero(t, got.Sums[1][2])
}

func TestFromGrid_RejectsIncomplete(t *testing.T) {
	spec, err := grid.Build(90, 90)
	require.NoError(t, err)
	_, err = FromGrid(keys.GridKey{AzimuthRes: 90, SlopeRes: 90}, grid.New(spec), time.Now())
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("hello world"))
	assert.True(t, errors.Is(err, ErrBadMagic))

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrBadMagic)

	k, g := testGrid(t, 45, 45)
	a, err := FromGrid(k, g, time.Now())
	require.NoError(t, err)
	b, err := Encode(a)
	require.NoError(t, err)

	_, err = Decode(b[:len(b)/2])
	assert.Error(t, err, "truncated artifact must not decode")
}

func TestDecode_RejectsInconsistentSums(t *testing.T) {
	k, g := testGrid(t, 45, 45)
	a, err := FromGrid(k, g, time.Now())
	require.NoError(t, err)
	a.Sums[1][1] += 1

	b, err := Encode(a)
	require.NoError(t, err)
	_, err = Decode(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stored sum")
}

func TestDecode_RejectsShapeAndVersion(t *testing.T) {
	k, g := testGrid(t, 45, 45)

	a, err := FromGrid(k, g, time.Now())
	require.NoError(t, err)
	a.Cells[0][0] = a.Cells[0][0][:100]
	b, err := Encode(a)
	require.NoError(t, err)
	_, err = Decode(b)
	assert.ErrorContains(t, err, "series length")

	k, g = testGrid(t, 45, 45)
	a, err = FromGrid(k, g, time.Now())
	require.NoError(t, err)
	a.Version = 99
	b, err = Encode(a)
	require.NoError(t, err)
	_, err = Decode(b)
	assert.ErrorContains(t, err, "version")

	k, g = testGrid(t, 45, 45)
	a, err = FromGrid(k, g, time.Now())
	require.NoError(t, err)
	a.AzimuthRes = 30
	b, err = Encode(a)
	require.NoError(t, err)
	_, err = Decode(b)
	assert.ErrorContains(t, err, "axes")
}
