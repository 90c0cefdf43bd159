package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/pvgrid-cache/internal/logger"
)

// Payload is a parsed run request. Strategies read only what they need.
type Payload struct {
	Kind          Kind
	Azimuth       int
	Slope         int
	Latitude      float64
	Longitude     float64
	Year          int
	WeatherFile   string
	DemandProfile *File
}

type File struct {
	Name string
	Data []byte
}

// Strategy runs one kind of flow. The result is written to the caller as JSON.
type Strategy interface {
	Execute(ctx context.Context, p Payload) (any, error)
}

type Registry struct {
	strategies map[Kind]Strategy
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{strategies: map[Kind]Strategy{}, logger: logger}
}

func (r *Registry) Register(k Kind, s Strategy) {
	r.strategies[k] = s
}

// Kinds lists registered kinds in name order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.strategies))
	for k := range r.strategies {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch runs p through the strategy registered for p.Kind. There is no
// fallback: an unregistered kind is ErrUnknownKind.
func (r *Registry) Dispatch(ctx context.Context, p Payload) (any, error) {
	s, ok := r.strategies[p.Kind]
	if !ok {
		return nil, fmt.Errorf("%w %q: not configured", ErrUnknownKind, p.Kind)
	}
	ctx = logger.WithFlow(ctx, p.Kind.String())
	r.logger.InfoContext(ctx, "dispatching flow", "year", p.Year, "azimuth", p.Azimuth, "slope", p.Slope)
	return s.Execute(ctx, p)
}
