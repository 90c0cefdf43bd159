// Package acquisition turns a grid request into a grid summary, from the
// fastest tier that has it or by sampling PVGIS cell by cell.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/codec"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/summarylru"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
	"github.com/mohammed-shakir/pvgrid-cache/internal/grid"
	"github.com/mohammed-shakir/pvgrid-cache/internal/gridevents"
	"github.com/mohammed-shakir/pvgrid-cache/internal/logger"
	"github.com/mohammed-shakir/pvgrid-cache/internal/pvgis"
	"github.com/mohammed-shakir/pvgrid-cache/internal/schedule"
	"github.com/mohammed-shakir/pvgrid-cache/internal/series"
)

// Fetcher is the per-cell irradiance call; *pvgis.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, q pvgis.Query) (pvgis.Hourly, error)
}

// Locator files a persisted grid under its location.
type Locator interface {
	Record(ctx context.Context, lat, lon float64, gridKey string) error
}

// Publisher announces persisted grids.
type Publisher interface {
	Publish(ev gridevents.Event)
}

type Options struct {
	Fetcher   Fetcher
	Scheduler *schedule.Scheduler
	Store     *cache.Store

	// optional tiers and side effects
	Blob      blobstore.Store
	Locator   Locator
	Events    Publisher
	Summaries *summarylru.Cache[Summary]

	Retries   int
	RetryBase time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

type Engine struct {
	fetcher   Fetcher
	sched     *schedule.Scheduler
	store     *cache.Store
	blob      blobstore.Store
	locator   Locator
	events    Publisher
	summaries *summarylru.Cache[Summary]
	retries   int
	retryBase time.Duration
	logger    *slog.Logger
	now       func() time.Time

	flight singleflight.Group
}

func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("acquisition: fetcher is required")
	}
	if opts.Store == nil {
		return nil, errors.New("acquisition: cache store is required")
	}
	e := &Engine{
		fetcher:   opts.Fetcher,
		sched:     opts.Scheduler,
		store:     opts.Store,
		blob:      opts.Blob,
		locator:   opts.Locator,
		events:    opts.Events,
		summaries: opts.Summaries,
		retries:   opts.Retries,
		retryBase: opts.RetryBase,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if e.sched == nil {
		e.sched = schedule.New(schedule.Config{})
	}
	if e.retries < 0 {
		e.retries = 0
	}
	if e.retryBase <= 0 {
		e.retryBase = 500 * time.Millisecond
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// followers retry at most this many times when the leader they joined was
// cancelled by its own caller
const maxRejoin = 3

// Acquire returns the summary for req. Identical requests in flight share
// one computation; the caller gets either a complete summary or an error.
func (e *Engine) Acquire(ctx context.Context, req Request) (Result, error) {
	spec, err := req.Validate()
	if err != nil {
		return Result{}, err
	}
	key := req.Key()
	name := key.String()
	ctx = logger.WithCacheKey(ctx, name)

	if s, ok := e.summaries.Get(name); ok {
		observability.ObserveAcquisition(string(SourceMemory), "ok", 0)
		return Result{Summary: s, Source: SourceMemory}, nil
	}

	for attempt := 0; ; attempt++ {
		ch := e.flight.DoChan(name, func() (any, error) {
			return e.acquire(ctx, key, spec)
		})
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				if isCancel(r.Err) && ctx.Err() == nil && attempt < maxRejoin {
					continue
				}
				return Result{}, r.Err
			}
			res := r.Val.(Result)
			if r.Shared {
				e.logger.DebugContext(ctx, "joined in-flight acquisition", "source", res.Source)
			}
			return res, nil
		}
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// acquire runs once per key at a time: store, blob, then compute.
func (e *Engine) acquire(ctx context.Context, key keys.GridKey, spec grid.Spec) (Result, error) {
	start := time.Now()
	name := key.String()

	a, err := e.store.Load(ctx, key)
	switch {
	case err == nil:
		res := e.remember(Result{Summary: summarizeArtifact(a), Source: SourceCache})
		observability.ObserveAcquisition(string(SourceCache), "ok", time.Since(start).Seconds())
		e.logger.InfoContext(ctx, "grid served from cache", "dur", time.Since(start))
		return res, nil
	case errors.Is(err, cache.ErrNotFound):
	case isCorrupt(err):
		// already logged by the store; recompute over it
	default:
		if isCancel(err) && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger.WarnContext(ctx, "cache lookup failed, continuing as miss", "err", err)
	}

	if a, ok := e.loadBlob(ctx, key); ok {
		res := e.remember(Result{Summary: summarizeArtifact(a), Source: SourceBlob})
		observability.ObserveAcquisition(string(SourceBlob), "ok", time.Since(start).Seconds())
		e.logger.InfoContext(ctx, "grid served from blob store", "dur", time.Since(start))
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res, err := e.compute(ctx, key, spec)
	if err != nil {
		outcome := "failed"
		if isCancel(err) {
			outcome = "cancelled"
		}
		observability.ObserveAcquisition(string(SourceComputed), outcome, time.Since(start).Seconds())
		return Result{}, fmt.Errorf("acquire %s: %w", name, err)
	}
	observability.ObserveAcquisition(string(SourceComputed), "ok", time.Since(start).Seconds())
	return res, nil
}

func isCorrupt(err error) bool {
	var ce *cache.CorruptError
	return errors.As(err, &ce)
}

func (e *Engine) remember(res Result) Result {
	e.summaries.Add(res.CacheKey, res.Summary)
	return res
}

func objectKey(k keys.GridKey) blobstore.ObjectKey {
	return blobstore.ObjectKey{Year: k.Year, Name: k.String(), AzimuthRes: k.AzimuthRes, SlopeRes: k.SlopeRes}
}

// loadBlob checks the blob store and writes a usable artifact back to the
// cache store so the next lookup stays local.
func (e *Engine) loadBlob(ctx context.Context, key keys.GridKey) (*codec.Artifact, bool) {
	if e.blob == nil {
		return nil, false
	}
	obj := objectKey(key)
	exists, err := e.blob.Exists(ctx, obj)
	if err != nil {
		e.logger.WarnContext(ctx, "blob exists check failed", "object", obj.Key(), "err", err)
		return nil, false
	}
	if !exists {
		observability.ObserveCacheLookup("blob", false)
		return nil, false
	}
	b, err := e.blob.Get(ctx, obj)
	if err != nil {
		observability.ObserveCacheLookup("blob", false)
		if !errors.Is(err, blobstore.ErrNotFound) {
			e.logger.WarnContext(ctx, "blob get failed", "object", obj.Key(), "err", err)
		}
		return nil, false
	}
	a, err := codec.Decode(b)
	if err == nil && a.Key().String() != key.String() {
		err = fmt.Errorf("artifact belongs to %s", a.Key())
	}
	if err != nil {
		observability.ObserveCacheLookup("blob", false)
		e.logger.WarnContext(ctx, "corrupt blob artifact, treating as miss", "object", obj.Key(), "err", err)
		return nil, false
	}
	observability.ObserveCacheLookup("blob", true)

	if _, err := e.store.Save(context.WithoutCancel(ctx), key, b); err != nil {
		e.logger.WarnContext(ctx, "write-back of blob artifact failed", "err", err)
	}
	return a, true
}

// compute samples every cell and persists the finished grid.
func (e *Engine) compute(ctx context.Context, key keys.GridKey, spec grid.Spec) (Result, error) {
	id := newAcquisitionID()
	ctx = logger.WithAcquisitionID(ctx, id)
	start := time.Now()

	cells := spec.Cells()
	agg := grid.NewAggregator(spec)
	var malformed atomic.Int64

	e.logger.InfoContext(ctx, "computing grid",
		"cells", len(cells), "azimuth_res", key.AzimuthRes, "slope_res", key.SlopeRes,
		"lat", key.Lat, "lon", key.Lon, "year", key.Year)

	tasks := make([]schedule.Task, len(cells))
	for i, c := range cells {
		slope, azimuth := spec.Angles(c)
		q := pvgis.Query{Lat: key.Lat, Lon: key.Lon, Year: key.Year, Slope: slope, Azimuth: azimuth}
		tasks[i] = func(ctx context.Context) error {
			h, err := e.fetch(ctx, q)
			var s series.Series
			switch {
			case err == nil:
				observability.IncCellFetch("ok")
				s = h.Series()
			case pvgis.IsMalformed(err):
				observability.IncCellFetch("malformed")
				malformed.Add(1)
				e.logger.WarnContext(ctx, "malformed cell response, using zeros", "query", q.String(), "err", err)
				s = series.Zero()
			default:
				if !isCancel(err) {
					observability.IncCellFetch("failed")
				}
				return err
			}
			return agg.Record(c, s)
		}
	}

	if err := e.sched.Run(ctx, tasks); err != nil {
		e.logger.WarnContext(ctx, "grid computation aborted",
			"recorded", agg.Recorded(), "cells", len(cells), "err", err)
		return Result{}, err
	}

	g := agg.Snapshot()
	if !g.Complete() {
		return Result{}, fmt.Errorf("grid incomplete: %d of %d cells recorded", agg.Recorded(), len(cells))
	}

	res := Result{
		Summary:        summarize(key.String(), g),
		Source:         SourceComputed,
		AcquisitionID:  id,
		MalformedCells: int(malformed.Load()),
	}
	for _, w := range e.persist(ctx, key, g, id) {
		res.Warnings = append(res.Warnings, w.Error())
	}
	e.remember(res)

	e.logger.InfoContext(ctx, "grid computed",
		"cells", len(cells), "malformed", res.MalformedCells,
		"warnings", len(res.Warnings), "dur", time.Since(start))
	return res, nil
}

// fetch calls PVGIS, retrying transport errors that are worth retrying.
func (e *Engine) fetch(ctx context.Context, q pvgis.Query) (pvgis.Hourly, error) {
	var h pvgis.Hourly
	r := retrier.New(retrier.ExponentialBackoff(e.retries, e.retryBase), transientClassifier{})
	r.SetJitter(0.2)
	err := r.RunFn(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			// retries draw from the same bucket as first attempts
			if err := e.sched.Wait(ctx); err != nil {
				return err
			}
			observability.IncCellFetch("retried")
		}
		var err error
		h, err = e.fetcher.Fetch(ctx, q)
		return err
	})
	return h, err
}

type transientClassifier struct{}

func (transientClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case retryable(err):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}

func retryable(err error) bool {
	var te *pvgis.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if isCancel(err) {
		return false
	}
	return te.Temporary()
}

// persist writes the grid everywhere it belongs. It runs detached from the
// caller's cancellation: the work is already paid for.
func (e *Engine) persist(ctx context.Context, key keys.GridKey, g *grid.Grid, id string) []error {
	ctx = context.WithoutCancel(ctx)
	name := key.String()

	a, err := codec.FromGrid(key, g, e.now())
	if err != nil {
		return []error{&PersistenceError{Stage: "encode", Key: name, Err: err}}
	}
	b, err := codec.Encode(a)
	if err != nil {
		return []error{&PersistenceError{Stage: "encode", Key: name, Err: err}}
	}
	observability.ObserveArtifactBytes(len(b))

	var warns []error
	fail := func(stage string, err error) {
		pe := &PersistenceError{Stage: stage, Key: name, Err: err}
		e.logger.WarnContext(ctx, "grid persistence failed", "stage", stage, "err", err)
		warns = append(warns, pe)
	}

	if _, err := e.store.Save(ctx, key, b); err != nil {
		fail("cache", err)
	}
	if e.blob != nil {
		if err := e.blob.Put(ctx, objectKey(key), b); err != nil {
			fail("blob", err)
		}
	}
	if e.locator != nil {
		if err := e.locator.Record(ctx, key.Lat, key.Lon, name); err != nil {
			fail("location_index", err)
		}
	}
	if e.events != nil {
		s, az := g.Shape()
		e.events.Publish(gridevents.Event{
			CacheKey:      name,
			AzimuthRes:    key.AzimuthRes,
			SlopeRes:      key.SlopeRes,
			Lat:           key.Lat,
			Lon:           key.Lon,
			Year:          key.Year,
			Shape:         [2]int{s, az},
			AcquisitionID: id,
		})
	}
	return warns
}

func newAcquisitionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
