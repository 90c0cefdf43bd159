package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/pvgrid-cache/internal/acquisition"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/model"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
	"github.com/mohammed-shakir/pvgrid-cache/internal/flow"
	"github.com/mohammed-shakir/pvgrid-cache/internal/grid"
	h3mapper "github.com/mohammed-shakir/pvgrid-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/pvgrid-cache/internal/pvgis"
	"github.com/mohammed-shakir/pvgrid-cache/internal/simrunner"
)

// Acquirer serves grid requests; *acquisition.Engine implements it.
type Acquirer interface {
	Acquire(ctx context.Context, req acquisition.Request) (acquisition.Result, error)
}

// Locator lists grids near a location; *cellindex.Locator implements it.
type Locator interface {
	Nearby(ctx context.Context, lat, lon float64, k int) ([]string, error)
}

// Dispatcher runs a flow; *flow.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, p flow.Payload) (any, error)
}

// Defaults fill in resolutions the caller left out.
type Defaults struct {
	AzimuthRes int
	SlopeRes   int
}

const (
	defaultNearbyK = 1
	maxFormBytes   = 32 << 20
)

// request parameter names, current and legacy
var (
	gridParams   = paramNames{azRes: "azimuth_res", slopeRes: "slope_res", lat: "lat", lon: "lon", year: "year"}
	legacyParams = paramNames{azRes: "azimuth", slopeRes: "slope", lat: "latit", lon: "longit", year: "year"}
)

type paramNames struct {
	azRes, slopeRes, lat, lon, year string
}

// HandleGrid validates a grid request and returns its summary as JSON.
// legacy selects the parameter names of the old /getData route.
func HandleGrid(logger *slog.Logger, h Acquirer, def Defaults, legacy bool) http.HandlerFunc {
	names, route := gridParams, "/grid"
	if legacy {
		names, route = legacyParams, "/getData"
	}
	return instrument(route, func(w http.ResponseWriter, r *http.Request) {
		q, err := parseGridQuery(r, names, def)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := h.Acquire(r.Context(), acquisition.Request{
			AzimuthRes: q.AzimuthRes,
			SlopeRes:   q.SlopeRes,
			Lat:        q.Lat,
			Lon:        q.Lon,
			Year:       q.Year,
		})
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

// ParseGridQuery reads the current parameter names.
func ParseGridQuery(r *http.Request, def Defaults) (model.GridQuery, error) {
	return parseGridQuery(r, gridParams, def)
}

// ParseLegacyGridQuery reads the /getData parameter names.
func ParseLegacyGridQuery(r *http.Request, def Defaults) (model.GridQuery, error) {
	return parseGridQuery(r, legacyParams, def)
}

func parseGridQuery(r *http.Request, n paramNames, def Defaults) (model.GridQuery, error) {
	v := r.URL.Query()
	var q model.GridQuery
	var err error

	if q.AzimuthRes, err = intParam(v.Get(n.azRes), def.AzimuthRes); err != nil {
		return q, fmt.Errorf("invalid %s: %w", n.azRes, err)
	}
	if q.SlopeRes, err = intParam(v.Get(n.slopeRes), def.SlopeRes); err != nil {
		return q, fmt.Errorf("invalid %s: %w", n.slopeRes, err)
	}
	if q.Lat, err = requiredFloat(v.Get(n.lat)); err != nil {
		return q, fmt.Errorf("invalid %s: %w", n.lat, err)
	}
	if q.Lon, err = requiredFloat(v.Get(n.lon)); err != nil {
		return q, fmt.Errorf("invalid %s: %w", n.lon, err)
	}
	if q.Year, err = intParam(v.Get(n.year), 0); err != nil || q.Year == 0 {
		if err == nil {
			err = errors.New("missing required parameter")
		}
		return q, fmt.Errorf("invalid %s: %w", n.year, err)
	}
	return q, nil
}

// HandleNearby lists cache keys of grids computed near a location.
func HandleNearby(logger *slog.Logger, loc Locator) http.HandlerFunc {
	return instrument("/grids/nearby", func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseNearbyQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ks, err := loc.Nearby(r.Context(), q.Lat, q.Lon, q.K)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}
		if ks == nil {
			ks = []string{}
		}
		writeJSON(w, http.StatusOK, model.NearbyResponse{Lat: q.Lat, Lon: q.Lon, K: q.K, Keys: ks})
	})
}

func ParseNearbyQuery(r *http.Request) (model.NearbyQuery, error) {
	v := r.URL.Query()
	var q model.NearbyQuery
	var err error
	if q.Lat, err = requiredFloat(v.Get("lat")); err != nil {
		return q, fmt.Errorf("invalid lat: %w", err)
	}
	if q.Lon, err = requiredFloat(v.Get("lon")); err != nil {
		return q, fmt.Errorf("invalid lon: %w", err)
	}
	if math.IsNaN(q.Lat) || math.IsNaN(q.Lon) || q.Lat < -90 || q.Lat > 90 || q.Lon < -180 || q.Lon > 180 {
		return q, errors.New("lat must be in [-90,90] and lon in [-180,180]")
	}
	if q.K, err = intParam(v.Get("k"), defaultNearbyK); err != nil {
		return q, fmt.Errorf("invalid k: %w", err)
	}
	if q.K < 0 || q.K > h3mapper.MaxRing {
		return q, fmt.Errorf("k must be in [0,%d]", h3mapper.MaxRing)
	}
	return q, nil
}

// HandleRun parses a run form and dispatches it to its flow.
func HandleRun(logger *slog.Logger, d Dispatcher) http.HandlerFunc {
	return instrument("/run", func(w http.ResponseWriter, r *http.Request) {
		p, err := ParseRunForm(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out, err := d.Dispatch(r.Context(), p)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// ParseRunForm reads a multipart or urlencoded run form. profileDemand is an
// optional file part.
func ParseRunForm(r *http.Request) (flow.Payload, error) {
	var p flow.Payload
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return p, fmt.Errorf("parse form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return p, fmt.Errorf("parse form: %w", err)
	}

	kind, err := flow.ParseKind(r.FormValue("flow"))
	if err != nil {
		return p, err
	}
	p.Kind = kind

	if p.Azimuth, err = requiredInt(r.FormValue("azimuth")); err != nil {
		return p, fmt.Errorf("invalid azimuth: %w", err)
	}
	if p.Slope, err = requiredInt(r.FormValue("slope")); err != nil {
		return p, fmt.Errorf("invalid slope: %w", err)
	}
	if p.Latitude, err = requiredFloat(r.FormValue("latitude")); err != nil {
		return p, fmt.Errorf("invalid latitude: %w", err)
	}
	if p.Longitude, err = requiredFloat(r.FormValue("longitude")); err != nil {
		return p, fmt.Errorf("invalid longitude: %w", err)
	}
	if p.Year, err = requiredInt(r.FormValue("year")); err != nil {
		return p, fmt.Errorf("invalid year: %w", err)
	}
	p.WeatherFile = strings.TrimSpace(r.FormValue("weatherFile"))

	if r.MultipartForm != nil {
		f, hdr, err := r.FormFile("profileDemand")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return p, fmt.Errorf("profileDemand: %w", err)
		default:
			defer func() { _ = f.Close() }()
			b, err := io.ReadAll(f)
			if err != nil {
				return p, fmt.Errorf("profileDemand: %w", err)
			}
			p.DemandProfile = &flow.File{Name: hdr.Filename, Data: b}
		}
	}
	return p, nil
}

// StatusFor maps an acquisition or dispatch error to an HTTP status.
func StatusFor(err error) int {
	var (
		te *pvgis.TransportError
		re *simrunner.RunnerError
	)
	switch {
	case errors.Is(err, grid.ErrInvalidResolution),
		errors.Is(err, acquisition.ErrInvalidRequest),
		errors.Is(err, flow.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.As(err, &te), errors.As(err, &re):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	code := StatusFor(err)
	if code >= 500 {
		logger.ErrorContext(ctx, "request failed", "status", code, "err", err)
	} else {
		logger.InfoContext(ctx, "request rejected", "status", code, "err", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// instrument records status and latency per route.
func instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func intParam(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse int: %w", err)
	}
	return n, nil
}

func requiredInt(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("missing required parameter")
	}
	return intParam(v, 0)
}

func requiredFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("missing required parameter")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
