package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
	ErrorHandler     func(int, error) // Optional per-job error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers: runtime.NumCPU(),
	}
}

// Task processes job i. Tasks run concurrently and must not share a
// contour.Generator.
type Task func(ctx context.Context, index int) error

type jobResult struct {
	index int
	err   error
}

// ProcessParallel runs task for indices 0..n-1 on a worker pool. The returned
// slice holds each job's error in input order. The second return value is
// non-nil only when ctx was cancelled.
func ProcessParallel(ctx context.Context, n int, config ParallelConfig, task Task) ([]error, error) {
	if n <= 0 {
		return nil, nil
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	config.MaxWorkers = min(config.MaxWorkers, n)

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(n)
		defer config.ProgressCallback.OnComplete()
	}

	errs := make([]error, n)
	if config.MaxWorkers == 1 {
		for i := range n {
			if err := ctx.Err(); err != nil {
				return errs, err
			}
			errs[i] = task(ctx, i)
			report(config, i, i+1, n, errs[i])
		}
		return errs, ctx.Err()
	}

	jobs := make(chan int, n)
	results := make(chan jobResult, n)

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go worker(ctx, jobs, results, &wg, task)
	}

	go func() {
		defer close(jobs)
		for i := range n {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		errs[r.index] = r.err
		done++
		report(config, r.index, done, n, r.err)
	}

	return errs, ctx.Err()
}

func report(config ParallelConfig, index, done, total int, err error) {
	if err != nil {
		if config.ErrorHandler != nil {
			config.ErrorHandler(index, err)
		}
		if config.ProgressCallback != nil {
			config.ProgressCallback.OnError(index, err)
		}
	}
	if config.ProgressCallback != nil {
		config.ProgressCallback.OnProgress(done, total)
	}
}

func worker(ctx context.Context, jobs <-chan int, results chan<- jobResult, wg *sync.WaitGroup, task Task) {
	defer wg.Done()

	for {
		select {
		case i, ok := <-jobs:
			if !ok {
				return
			}
			err := task(ctx, i)
			select {
			case results <- jobResult{index: i, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// FirstError returns the first non-nil error in errs annotated with its index.
func FirstError(errs []error) error {
	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("job %d: %w", i, err)
		}
	}
	return nil
}

// ParallelStats holds statistics about parallel processing performance.
type ParallelStats struct {
	TotalJobs        int           `json:"total_jobs"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerJob    time.Duration `json:"average_per_job_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats summarizes the outcome of ProcessParallel.
func CalculateParallelStats(errs []error, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalJobs:     len(errs),
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, err := range errs {
		if err != nil {
			stats.Failed++
		} else {
			stats.Succeeded++
		}
	}
	if stats.Succeeded > 0 {
		stats.AveragePerJob = duration / time.Duration(stats.Succeeded)
		if duration > 0 {
			stats.ThroughputPerSec = float64(stats.Succeeded) / duration.Seconds()
		}
	}
	return stats
}
