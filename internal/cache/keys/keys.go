// Package keys derives cache keys for computed grids.
package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Coordinates are keyed at the precision sent to PVGIS.
const coordDecimals = 6

// GridKey identifies one grid: sampling resolution, location and year.
type GridKey struct {
	AzimuthRes int
	SlopeRes   int
	Lat        float64
	Lon        float64
	Year       int
}

// Canonical is the normalised text every other form is derived from.
func (k GridKey) Canonical() string {
	return fmt.Sprintf("azires=%d,sloperes=%d,lat=%s,lon=%s,year=%d",
		k.AzimuthRes, k.SlopeRes, coord(k.Lat), coord(k.Lon), k.Year)
}

// Hash is the xxhash of the canonical text.
func (k GridKey) Hash() uint64 {
	return xxhash.Sum64String(k.Canonical())
}

// String is the filename-safe key, [A-Za-z0-9_] only.
func (k GridKey) String() string {
	return fmt.Sprintf("grid_azires_%d_sloperes_%d_lat%s_lon%s_y%d_f%016x",
		k.AzimuthRes, k.SlopeRes,
		sanitizeForKey(coord(k.Lat)), sanitizeForKey(coord(k.Lon)),
		k.Year, k.Hash())
}

const redisGridPrefix = "pvgrid:grid:"

// RedisGridKey namespaces a grid key string for a shared Redis.
func RedisGridKey(key string) string {
	return redisGridPrefix + key
}

// RedisKey is RedisGridKey applied to k.
func (k GridKey) RedisKey() string {
	return RedisGridKey(k.String())
}

func coord(v float64) string {
	s := strconv.FormatFloat(v, 'f', coordDecimals, 64)
	// -0.000000 and 0.000000 are the same place
	if strings.Trim(s, "-0.") == "" {
		return strconv.FormatFloat(0, 'f', coordDecimals, 64)
	}
	return s
}

// maps the sign and decimal point of a formatted number onto key-safe runes
func sanitizeForKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-':
			b.WriteByte('m')
		case r == '.':
			b.WriteByte('p')
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// LocationIndexKey names the Redis set of grid keys computed inside an H3 cell.
func LocationIndexKey(res int, cell string) string {
	return fmt.Sprintf("pvgrid:loc:%d:%s", res, cell)
}
