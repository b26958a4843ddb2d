// Package runner provides bounded concurrent execution over a batch of inputs
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/ratelimit"
)

// Result pairs an input with the outcome of processing it
type Result[In, Out any] struct {
	Input    In
	Data     Out
	Error    error
	Duration time.Duration
}

// Stats tracks execution statistics
type Stats struct {
	Total      int64
	Completed  int64
	Successful int64
	Failed     int64
	StartTime  time.Time
}

// RPS returns the current completions per second
func (s *Stats) RPS() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.Completed)) / elapsed
}

// Progress returns completion percentage (0-100)
func (s *Stats) Progress() float64 {
	total := atomic.LoadInt64(&s.Total)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.Completed)) / float64(total) * 100
}

// Runner executes a task over many inputs with at most Concurrency tasks in
// flight
type Runner[In, Out any] struct {
	// Concurrency is the number of parallel workers (default defaults.Threads)
	Concurrency int

	// Timeout bounds each task (0 = no per-task timeout)
	Timeout time.Duration

	// Limiter throttles dispatch (optional)
	Limiter *ratelimit.Limiter

	// HostOf names the rate limiting bucket of an input (optional)
	HostOf func(In) string

	// Stats tracks execution statistics
	Stats Stats

	// OnProgress is called after each task completes
	OnProgress func(completed, total int64, result Result[In, Out])

	// OnError is called when a task fails (optional)
	OnError func(input In, err error)
}

// NewRunner creates a runner with the given worker count
func NewRunner[In, Out any](concurrency int) *Runner[In, Out] {
	return &Runner[In, Out]{Concurrency: concurrency}
}

// TaskFunc processes a single input
type TaskFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Run executes task for every input and returns one Result per dispatched
// input, in completion order.
//
// ctx is polled before each dispatch. Once it is done no further inputs are
// started; tasks already running keep their own timeout and run to the end,
// and Run returns ctx.Err() alongside whatever completed. Callers treat the
// results of a cancelled run as void.
func (r *Runner[In, Out]) Run(ctx context.Context, inputs []In, task TaskFunc[In, Out]) ([]Result[In, Out], error) {
	if len(inputs) == 0 {
		return nil, ctx.Err()
	}

	r.Stats = Stats{
		Total:     int64(len(inputs)),
		StartTime: time.Now(),
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaults.Threads
	}
	if concurrency > len(inputs) {
		concurrency = len(inputs)
	}

	sem := make(chan struct{}, concurrency)
	resultsChan := make(chan Result[In, Out], len(inputs))
	var wg sync.WaitGroup

	// In-flight tasks outlive a cancelled dispatch loop.
	taskParent := context.WithoutCancel(ctx)

	for _, input := range inputs {
		select {
		case <-ctx.Done():
			goto cleanup
		default:
		}

		if r.Limiter != nil {
			host := ""
			if r.HostOf != nil {
				host = r.HostOf(input)
			}
			if err := r.Limiter.Wait(ctx, host); err != nil {
				goto cleanup
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			goto cleanup
		}
		wg.Add(1)

		go func(in In) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()

			taskCtx := taskParent
			if r.Timeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(taskParent, r.Timeout)
				defer cancel()
			}

			data, err := task(taskCtx, in)
			result := Result[In, Out]{
				Input:    in,
				Data:     data,
				Error:    err,
				Duration: time.Since(start),
			}

			atomic.AddInt64(&r.Stats.Completed, 1)
			if err == nil {
				atomic.AddInt64(&r.Stats.Successful, 1)
			} else {
				atomic.AddInt64(&r.Stats.Failed, 1)
				if r.OnError != nil {
					r.OnError(in, err)
				}
			}

			if r.OnProgress != nil {
				r.OnProgress(
					atomic.LoadInt64(&r.Stats.Completed),
					atomic.LoadInt64(&r.Stats.Total),
					result,
				)
			}

			resultsChan <- result
		}(input)
	}

cleanup:
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result[In, Out], 0, len(inputs))
	for result := range resultsChan {
		results = append(results, result)
	}

	return results, ctx.Err()
}
