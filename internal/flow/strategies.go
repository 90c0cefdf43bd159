package flow

import (
	"context"

	"github.com/mohammed-shakir/pvgrid-cache/internal/acquisition"
	"github.com/mohammed-shakir/pvgrid-cache/internal/simrunner"
)

// Acquirer is implemented by *acquisition.Engine.
type Acquirer interface {
	Acquire(ctx context.Context, req acquisition.Request) (acquisition.Result, error)
}

// GridStrategy acquires a grid for the payload's location and year at fixed
// sampling resolutions. The payload's azimuth and slope describe one panel
// and do not pick the resolution.
type GridStrategy struct {
	Engine     Acquirer
	AzimuthRes int
	SlopeRes   int
}

func (g GridStrategy) Execute(ctx context.Context, p Payload) (any, error) {
	return g.Engine.Acquire(ctx, acquisition.Request{
		AzimuthRes: g.AzimuthRes,
		SlopeRes:   g.SlopeRes,
		Lat:        p.Latitude,
		Lon:        p.Longitude,
		Year:       p.Year,
	})
}

// SimulationStrategy forwards the run to the simulation runner.
type SimulationStrategy struct {
	Runner *simrunner.Client
}

func (s SimulationStrategy) Execute(ctx context.Context, p Payload) (any, error) {
	job := simrunner.Job{
		Azimuth:     p.Azimuth,
		Slope:       p.Slope,
		Year:        p.Year,
		WeatherData: p.WeatherFile,
	}
	if p.DemandProfile != nil {
		job.Demand = &simrunner.File{Name: p.DemandProfile.Name, Data: p.DemandProfile.Data}
	}
	return s.Runner.Run(ctx, job)
}
