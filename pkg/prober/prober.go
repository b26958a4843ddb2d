// Package prober issues bounded-parallel HTTP checks against a target and
// folds every answer, including failures, into an Outcome.
package prober

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/hosterrors"
	"github.com/cmsprobe/cmsprobe/pkg/iohelper"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/ratelimit"
	"github.com/cmsprobe/cmsprobe/pkg/retry"
	"github.com/cmsprobe/cmsprobe/pkg/runner"
)

// Task is one HTTP check.
type Task struct {
	URL    string
	Method string // http.MethodHead or http.MethodGet; empty means HEAD

	// Timeout bounds this request (0 = the prober default)
	Timeout time.Duration

	// Header is added to the request (optional)
	Header http.Header

	// KeepBody stores the (size-capped) body in the outcome. GET only.
	KeepBody bool
}

// Outcome is the result of one Task. Transport failures land in Err and
// never abort the batch.
type Outcome struct {
	Task

	Status   int
	Hash     string // MD5 of the body for GET, "" for HEAD
	Body     []byte
	Err      error
	Duration time.Duration
}

// OK reports whether the probe answered 200.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Status == http.StatusOK
}

// Options configures a Prober.
type Options struct {
	// Client sends target probes. It should not follow redirects.
	Client *http.Client

	// MetaClient sends GetWithBackoff requests (default: Client)
	MetaClient *http.Client

	// Timeout is the default per-request timeout (default: 15s)
	Timeout time.Duration

	Limiter    *ratelimit.Limiter
	HostErrors *hosterrors.Cache
	Metrics    *metrics.Recorder
	Logger     logrus.FieldLogger

	// Backoff overrides the package-metadata retry policy (tests)
	Backoff *retry.Config
}

// Prober sends Tasks. It is safe for concurrent use.
type Prober struct {
	client     *http.Client
	metaClient *http.Client
	timeout    time.Duration
	limiter    *ratelimit.Limiter
	hostErrors *hosterrors.Cache
	metrics    *metrics.Recorder
	log        logrus.FieldLogger
	backoff    retry.Config
}

// New creates a Prober.
func New(opts Options) *Prober {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.MetaClient == nil {
		opts.MetaClient = opts.Client
	}
	if opts.Timeout <= 0 {
		opts.Timeout = duration.HTTPProbe
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	backoff := retry.BackoffConfig()
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	return &Prober{
		client:     opts.Client,
		metaClient: opts.MetaClient,
		timeout:    opts.Timeout,
		limiter:    opts.Limiter,
		hostErrors: opts.HostErrors,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		backoff:    backoff,
	}
}

// Run sends tasks with at most maxParallel in flight and returns one Outcome
// per dispatched task, in completion order. When ctx is cancelled no further
// task is dispatched and Run returns ctx.Err() after in-flight requests
// finish; such outcomes are partial and should be discarded.
func (p *Prober) Run(ctx context.Context, tasks []Task, maxParallel int) ([]Outcome, error) {
	return p.RunWithProgress(ctx, tasks, maxParallel, nil)
}

// RunWithProgress is Run with a completion callback.
func (p *Prober) RunWithProgress(ctx context.Context, tasks []Task, maxParallel int, onProgress func(completed, total int64)) ([]Outcome, error) {
	if maxParallel <= 0 {
		maxParallel = defaults.Threads
	}

	r := runner.NewRunner[Task, Outcome](maxParallel)
	r.Limiter = p.limiter
	r.HostOf = func(t Task) string { return hostOf(t.URL) }
	if onProgress != nil {
		r.OnProgress = func(completed, total int64, _ runner.Result[Task, Outcome]) {
			onProgress(completed, total)
		}
	}

	results, err := r.Run(ctx, tasks, func(taskCtx context.Context, t Task) (Outcome, error) {
		return p.Do(taskCtx, t), nil
	})

	outcomes := make([]Outcome, len(results))
	for i, res := range results {
		outcomes[i] = res.Data
	}
	return outcomes, err
}

// Do sends a single task.
func (p *Prober) Do(ctx context.Context, t Task) (out Outcome) {
	if t.Method == "" {
		t.Method = http.MethodHead
	}
	out = Outcome{Task: t}

	if p.hostErrors != nil && p.hostErrors.Check(t.URL) {
		out.Err = hosterrors.ErrHostSkipped
		return out
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		p.metrics.ObserveProbe(t.Method, out.Status, out.Err, out.Duration)
	}()

	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, nil)
	if err != nil {
		out.Err = fmt.Errorf("prober: build request: %w", err)
		return out
	}
	for k, vs := range t.Header {
		if http.CanonicalHeaderKey(k) == "Host" {
			if len(vs) > 0 {
				req.Host = vs[0]
			}
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		out.Err = err
		p.recordHostError(t.URL, err)
		p.log.WithError(err).WithField(logger.FieldURL, t.URL).Debug("probe failed")
		return out
	}
	defer iohelper.DrainAndClose(resp.Body)

	if p.hostErrors != nil {
		p.hostErrors.MarkSuccess(t.URL)
	}
	out.Status = resp.StatusCode

	if t.Method == http.MethodGet {
		body, err := iohelper.ReadBodyDefault(resp.Body)
		if err != nil {
			out.Err = fmt.Errorf("prober: read body: %w", err)
			return out
		}
		out.Hash = fingerprint.Hash(body)
		if t.KeepBody {
			out.Body = body
		}
	}
	return out
}

func (p *Prober) recordHostError(target string, err error) {
	if p.hostErrors == nil || !hosterrors.IsNetworkError(err) {
		return
	}
	if p.hostErrors.MarkError(target) {
		p.log.WithField(logger.FieldTarget, hostOf(target)).Warn("host keeps refusing connections, skipping remaining probes")
	}
}

// GetWithBackoff fetches url with the package-metadata client, retrying
// refused and reset connections with exponential backoff. Any other error,
// including a non-200 status, fails immediately.
func (p *Prober) GetWithBackoff(ctx context.Context, url string) ([]byte, error) {
	cfg := p.backoff
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			p.log.WithError(err).WithField(logger.FieldURL, url).Infof("connection error, retrying in %s (attempt %d)", delay, attempt)
		}
	}

	var body []byte
	err := retry.Do(ctx, cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Stop(fmt.Errorf("prober: build request: %w", err))
		}
		resp, err := p.metaClient.Do(req)
		if err != nil {
			return err
		}
		defer iohelper.DrainAndClose(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return retry.Stop(fmt.Errorf("%w: %s: %d", ErrUnexpectedStatus, url, resp.StatusCode))
		}
		body, err = iohelper.ReadBody(resp.Body, iohelper.LargeMaxBodySize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
