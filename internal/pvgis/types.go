package pvgis

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

// Power fields in order of preference.
const (
	FieldP   = "P"
	FieldPAC = "P_ac"
)

// Query identifies one grid cell request. Azimuth uses the PVGIS aspect
// convention (0 = south).
type Query struct {
	Lat     float64
	Lon     float64
	Year    int
	Slope   int
	Azimuth int
}

func (q Query) String() string {
	return fmt.Sprintf("lat=%.6f lon=%.6f year=%d slope=%d azimuth=%d", q.Lat, q.Lon, q.Year, q.Slope, q.Azimuth)
}

// params renders the seriescalc query string.
func (q Query) params(peakPower, loss float64) url.Values {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(q.Lat, 'f', 6, 64))
	v.Set("lon", strconv.FormatFloat(q.Lon, 'f', 6, 64))
	v.Set("startyear", strconv.Itoa(q.Year))
	v.Set("endyear", strconv.Itoa(q.Year))
	v.Set("angle", strconv.FormatFloat(float64(q.Slope), 'f', 1, 64))
	v.Set("aspect", strconv.FormatFloat(float64(q.Azimuth), 'f', 1, 64))
	v.Set("pvtechchoice", "crystSi")
	v.Set("peakpower", strconv.FormatFloat(peakPower, 'f', 3, 64))
	v.Set("loss", strconv.FormatFloat(loss, 'f', -1, 64))
	v.Set("pvcalculation", "1")
	v.Set("outputformat", "json")
	return v
}

// Hourly is the raw power column of one seriescalc response. Values keep the
// undecoded JSON so normalisation decides what counts as numeric.
type Hourly struct {
	Field  string
	Values []json.RawMessage
}

// Series normalises the column to a full year.
func (h Hourly) Series() series.Series {
	return series.Normalize(h.Values)
}

type envelope struct {
	Outputs *struct {
		Hourly json.RawMessage `json:"hourly"`
	} `json:"outputs"`
}
