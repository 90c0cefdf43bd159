package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RespectsConcurrencyCap(t *testing.T) {
	s := New(Config{MaxConcurrency: 3, MaxPerSecond: 0})

	var inFlight, peak, ran atomic.Int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			ran.Add(1)
			return nil
		}
	}

	require.NoError(t, s.Run(context.Background(), tasks))
	assert.EqualValues(t, 20, ran.Load())
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.EqualValues(t, 0, inFlight.Load())
}

func TestRun_PacesStarts(t *testing.T) {
	s := New(Config{MaxConcurrency: 10, MaxPerSecond: 20})

	var mu sync.Mutex
	var starts []time.Time
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return nil
		}
	}

	begin := time.Now()
	require.NoError(t, s.Run(context.Background(), tasks))
	elapsed := time.Since(begin)

	// 8 starts at 20/s with burst 1: first immediate, 7 spaced 50ms apart
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	require.Len(t, starts, 8)
}

func TestRun_SharedLimiterAcrossRuns(t *testing.T) {
	s := New(Config{MaxConcurrency: 10, MaxPerSecond: 20})

	noop := func(context.Context) error { return nil }
	batch := []Task{noop, noop, noop, noop}

	begin := time.Now()
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Run(context.Background(), batch))
		}()
	}
	wg.Wait()

	// 8 starts total share one bucket
	assert.GreaterOrEqual(t, time.Since(begin), 300*time.Millisecond)
}

func TestWait_SharesBucketWithRun(t *testing.T) {
	s := New(Config{MaxConcurrency: 4, MaxPerSecond: 20})

	// each task makes one extra paced call, so 8 tokens in total
	task := func(ctx context.Context) error { return s.Wait(ctx) }
	begin := time.Now()
	require.NoError(t, s.Run(context.Background(), []Task{task, task, task, task}))
	assert.GreaterOrEqual(t, time.Since(begin), 300*time.Millisecond)
}

func TestWait_CancelledContext(t *testing.T) {
	s := New(Config{MaxPerSecond: 1})
	require.NoError(t, s.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// the next token is a second away, past the deadline
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestRun_SubmitsInOrder(t *testing.T) {
	s := New(Config{MaxConcurrency: 1})

	var mu sync.Mutex
	var order []int
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}
	}
	require.NoError(t, s.Run(context.Background(), tasks))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestRun_FirstErrorCancelsAndWaits(t *testing.T) {
	s := New(Config{MaxConcurrency: 4})
	boom := errors.New("boom")

	var running, started atomic.Int64
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			started.Add(1)
			running.Add(1)
			defer running.Add(-1)
			if i == 2 {
				return boom
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
				return nil
			}
		}
	}

	begin := time.Now()
	err := s.Run(context.Background(), tasks)
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, running.Load(), "Run returned with tasks still running")
	assert.Less(t, started.Load(), int64(50))
	assert.Less(t, time.Since(begin), time.Second)
}

func TestRun_ParentCancellation(t *testing.T) {
	s := New(Config{MaxConcurrency: 2, MaxPerSecond: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var ran atomic.Int64
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			ran.Add(1)
			return nil
		}
	}

	err := s.Run(ctx, tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, ran.Load(), int64(10))
}

func TestRun_Empty(t *testing.T) {
	require.NoError(t, New(Config{}).Run(context.Background(), nil))
}
