package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

func TestProcessParallel_OrderedErrors(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			var handled atomic.Int32
			cb := &recordingProgress{}
			cfg := ParallelConfig{
				MaxWorkers:       workers,
				ProgressCallback: cb,
				ErrorHandler:     func(int, error) { handled.Add(1) },
			}

			errs, err := ProcessParallel(context.Background(), 10, cfg, func(_ context.Context, i int) error {
				if i%3 == 0 {
					return fmt.Errorf("job failed: %d", i)
				}
				return nil
			})
			require.NoError(t, err)
			require.Len(t, errs, 10)

			for i, e := range errs {
				if i%3 == 0 {
					assert.EqualError(t, e, fmt.Sprintf("job failed: %d", i))
				} else {
					assert.NoError(t, e)
				}
			}
			assert.Equal(t, int32(4), handled.Load())
			assert.Equal(t, 10, cb.total)
			assert.Len(t, cb.updates, 10)
			assert.Len(t, cb.errors, 4)
			assert.True(t, cb.complete)
		})
	}
}

func TestProcessParallel_Concurrent(t *testing.T) {
	var running, peak atomic.Int32
	_, err := ProcessParallel(context.Background(), 8, ParallelConfig{MaxWorkers: 4}, func(context.Context, int) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestProcessParallel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessParallel(ctx, 5, ParallelConfig{MaxWorkers: 2}, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ProcessParallel(ctx, 5, ParallelConfig{MaxWorkers: 1}, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessParallel_Empty(t *testing.T) {
	errs, err := ProcessParallel(context.Background(), 0, DefaultParallelConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, errs)
}

func TestProcessParallel_IndependentGenerators(t *testing.T) {
	grids := []*raster.Grid{
		raster.Cone(16, 16, 6),
		raster.Ramp(16, 8, 0.5),
		raster.Waves(20, 20, 8, 3),
		raster.Checkerboard(12, 12, 3, 0, 2),
	}
	want := make([]int, len(grids))
	for i, g := range grids {
		res, err := Run(context.Background(), g.Reader(), &contour.Collector{}, DefaultConfig())
		require.NoError(t, err)
		want[i] = res.Stats.Polylines
	}

	got := make([]int, len(grids))
	errs, err := ProcessParallel(context.Background(), len(grids), ParallelConfig{MaxWorkers: 4},
		func(ctx context.Context, i int) error {
			res, err := Run(ctx, grids[i].Reader(), &contour.Collector{}, DefaultConfig())
			if err != nil {
				return err
			}
			got[i] = res.Stats.Polylines
			return nil
		})
	require.NoError(t, err)
	require.NoError(t, FirstError(errs))
	assert.Equal(t, want, got)
}

func TestFirstError(t *testing.T) {
	assert.NoError(t, FirstError([]error{nil, nil}))

	boom := errors.New("boom")
	err := FirstError([]error{nil, boom, errors.New("later")})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "job 1")
}

func TestCalculateParallelStats(t *testing.T) {
	stats := CalculateParallelStats([]error{nil, errors.New("x"), nil, nil}, 2*time.Second, 3)
	assert.Equal(t, 4, stats.TotalJobs)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.WorkerCount)
	assert.InDelta(t, 1.5, stats.ThroughputPerSec, 1e-9)
	assert.Equal(t, 2*time.Second/3, stats.AveragePerJob)

	empty := CalculateParallelStats(nil, time.Second, 1)
	assert.Zero(t, empty.ThroughputPerSec)
}
