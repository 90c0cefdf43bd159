package flow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pvgrid-cache/internal/acquisition"
	"github.com/mohammed-shakir/pvgrid-cache/internal/simrunner"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		err  bool
	}{
		{"grid", KindGrid, false},
		{"python", KindGrid, false},
		{" Python ", KindGrid, false},
		{"simulation", KindSimulation, false},
		{"MATLAB", KindSimulation, false},
		{"", "", true},
		{"octave", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.err {
				require.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

type fakeAcquirer struct {
	got acquisition.Request
}

func (f *fakeAcquirer) Acquire(_ context.Context, req acquisition.Request) (acquisition.Result, error) {
	f.got = req
	return acquisition.Result{Source: acquisition.SourceCache}, nil
}

func TestRegistry_DispatchesGridWithFixedResolution(t *testing.T) {
	acq := &fakeAcquirer{}
	reg := NewRegistry(nil)
	reg.Register(KindGrid, GridStrategy{Engine: acq, AzimuthRes: 10, SlopeRes: 5})

	out, err := reg.Dispatch(context.Background(), Payload{
		Kind: KindGrid, Azimuth: 45, Slope: 30, Latitude: 59.3, Longitude: 18.1, Year: 2019,
	})
	require.NoError(t, err)

	res, ok := out.(acquisition.Result)
	require.True(t, ok, "result type %T", out)
	assert.Equal(t, acquisition.SourceCache, res.Source)
	assert.Equal(t, acquisition.Request{AzimuthRes: 10, SlopeRes: 5, Lat: 59.3, Lon: 18.1, Year: 2019}, acq.got)
}

func TestRegistry_UnregisteredKind(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(KindGrid, GridStrategy{Engine: &fakeAcquirer{}})

	_, err := reg.Dispatch(context.Background(), Payload{Kind: KindSimulation})
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, []Kind{KindGrid}, reg.Kinds())
}

func TestSimulationStrategy_ForwardsPayload(t *testing.T) {
	var weather, demandName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		weather = r.FormValue("weatherData")
		f, hdr, err := r.FormFile("demandProfile")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = io.Copy(io.Discard, f)
		demandName = hdr.Filename
		_, _ = w.Write([]byte(`{"output":[1,2,3]}`))
	}))
	defer srv.Close()

	reg := NewRegistry(nil)
	reg.Register(KindSimulation, SimulationStrategy{Runner: simrunner.New(srv.URL, srv.Client(), nil)})

	out, err := reg.Dispatch(context.Background(), Payload{
		Kind: KindSimulation, Azimuth: 0, Slope: 30, Year: 2019,
		WeatherFile: "grid_a.pvgrid", DemandProfile: &File{Name: "d.csv", Data: []byte("1")},
	})
	require.NoError(t, err)
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":[1,2,3]}`, string(b))
	assert.Equal(t, "grid_a.pvgrid", weather)
	assert.Equal(t, "d.csv", demandName)
}

func TestSimulationStrategy_MissingDemandProfile(t *testing.T) {
	s := SimulationStrategy{Runner: simrunner.New("http://127.0.0.1:1", nil, nil)}
	_, err := s.Execute(context.Background(), Payload{Kind: KindSimulation, WeatherFile: "w"})
	require.Error(t, err)
	var re *simrunner.RunnerError
	assert.False(t, errors.As(err, &re))
}
