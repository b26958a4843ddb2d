// Package scan runs version resolution and enumeration against one or many
// targets and collects the findings.
package scan

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/enumerate"
	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/resolver"
	"github.com/cmsprobe/cmsprobe/pkg/runner"
	"github.com/cmsprobe/cmsprobe/pkg/tracing"
	"github.com/cmsprobe/cmsprobe/pkg/wordlist"
)

// Stages reported to OnProgress.
const (
	StageIdentify    = "identify"
	StageVersion     = "version"
	StagePlugins     = "plugins"
	StageThemes      = "themes"
	StageInteresting = "interesting"
)

// Options tune a scan.
type Options struct {
	Enumerate Selector

	Threads int
	Timeout time.Duration

	// Verb for existence probes: HEAD (default) or GET.
	Verb   string
	Header http.Header

	// Method overrides scanning-method detection.
	Method enumerate.Method

	// Number limits wordlist entries (0 = all).
	Number int

	NoHTMLFallback bool

	// OnProgress reports per-stage progress of a single-target scan.
	OnProgress func(stage string, completed, total int64)
}

func (o Options) stageProgress(stage string) func(completed, total int64) {
	if o.OnProgress == nil {
		return nil
	}
	return func(completed, total int64) { o.OnProgress(stage, completed, total) }
}

// Config wires a Scanner.
type Config struct {
	Prober   *prober.Prober
	Database fingerprint.Database
	DataDir  string
	Logger   logrus.FieldLogger
	Metrics  *metrics.Recorder
}

// Scanner runs scans. It is safe for concurrent use; the database is only
// read.
type Scanner struct {
	prober   *prober.Prober
	resolver *resolver.Resolver
	engine   *enumerate.Engine
	db       fingerprint.Database
	dataDir  string
	log      logrus.FieldLogger
	metrics  *metrics.Recorder
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		cfg.Logger = l
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	return &Scanner{
		prober:   cfg.Prober,
		resolver: resolver.New(cfg.Prober, cfg.Logger, cfg.Metrics),
		engine:   enumerate.New(cfg.Prober, cfg.Logger, cfg.Metrics),
		db:       cfg.Database,
		dataDir:  cfg.DataDir,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Identify returns the first CMS, in profile order, for which one of its
// regular files answers with a hash the database knows.
func (s *Scanner) Identify(ctx context.Context, base string, opts Options) (*profile.Profile, error) {
	var tasks []prober.Task
	for _, p := range profile.All() {
		if _, ok := s.db.Get(p.Name); !ok {
			continue
		}
		for _, f := range p.RegularFiles {
			tasks = append(tasks, prober.Task{URL: base + f, Method: http.MethodGet, Timeout: opts.Timeout, Header: opts.Header})
		}
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no fingerprint database loaded", ErrNotIdentified)
	}

	outcomes, err := s.prober.RunWithProgress(ctx, tasks, opts.Threads, opts.stageProgress(StageIdentify))
	if err != nil {
		return nil, err
	}
	byURL := make(map[string]prober.Outcome, len(outcomes))
	for _, o := range outcomes {
		byURL[o.URL] = o
	}

	for _, p := range profile.All() {
		vf, ok := s.db.Get(p.Name)
		if !ok {
			continue
		}
		for _, f := range p.RegularFiles {
			if o := byURL[base+f]; o.OK() && vf.KnowsHash(f, o.Hash) {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotIdentified, base)
}

// Scan scans one target. prof nil means identify the CMS first. The
// returned Result is non-nil whenever the target URL is valid, and carries
// whatever was found before an error.
func (s *Scanner) Scan(ctx context.Context, prof *profile.Profile, t Target, opts Options) (res *Result, err error) {
	base, err := RepairURL(t.URL)
	if err != nil {
		return nil, err
	}

	res = &Result{
		ID:        uuid.NewString(),
		Target:    base,
		Host:      t.Host,
		StartedAt: time.Now(),
	}

	ctx, span := tracing.Start(ctx, "scan",
		tracing.KeyScanID.String(res.ID),
		tracing.KeyTarget.String(base),
	)
	defer func() {
		elapsed := time.Since(res.StartedAt)
		res.ElapsedMS = elapsed.Milliseconds()
		if err != nil {
			res.Error = err.Error()
		}
		if res.CMS != "" {
			span.SetAttributes(tracing.KeyCMS.String(res.CMS))
			s.metrics.ObserveScan(res.CMS, elapsed)
		}
		tracing.End(span, err)
	}()

	if t.Host != "" {
		opts.Header = opts.Header.Clone()
		if opts.Header == nil {
			opts.Header = http.Header{}
		}
		opts.Header.Set("Host", t.Host)
	}

	if prof == nil {
		if prof, err = s.Identify(ctx, base, opts); err != nil {
			return res, err
		}
	}
	res.CMS = prof.Name

	log := s.log.WithFields(logrus.Fields{logger.FieldCMS: prof.Name, logger.FieldTarget: base, logger.FieldScanID: res.ID})

	sel, err := opts.Enumerate.For(prof)
	if err != nil {
		return res, err
	}

	if sel.Version {
		if err := s.version(ctx, res, prof, base, sel, opts, log); err != nil {
			return res, err
		}
	}

	if !sel.Plugins && !sel.Themes && !sel.Interesting {
		return res, nil
	}

	eopts := enumerate.Options{
		Verb:    opts.Verb,
		Threads: opts.Threads,
		Timeout: opts.Timeout,
		Header:  opts.Header,
		Number:  opts.Number,
	}

	var det enumerate.Detection
	if sel.Plugins || sel.Themes {
		det, err = s.engine.Detect(ctx, base, prof, opts.Method, eopts)
	} else {
		det, err = s.engine.Baseline(ctx, base, eopts)
	}
	if err != nil {
		return res, err
	}
	res.Method = det.Method
	res.CatchAll = det.CatchAll

	if sel.Plugins {
		if words, ok := s.words(res, prof, wordlist.KindPlugins, log); ok {
			eopts.OnProgress = opts.stageProgress(StagePlugins)
			if res.Plugins, err = s.engine.Plugins(ctx, base, prof, words, det, eopts); err != nil {
				return res, err
			}
		}
	}
	if sel.Themes {
		if words, ok := s.words(res, prof, wordlist.KindThemes, log); ok {
			eopts.OnProgress = opts.stageProgress(StageThemes)
			if res.Themes, err = s.engine.Themes(ctx, base, prof, words, det, eopts); err != nil {
				return res, err
			}
		}
	}
	if sel.Interesting {
		eopts.OnProgress = opts.stageProgress(StageInteresting)
		if res.Interesting, err = s.engine.Interesting(ctx, base, prof, det, eopts); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Scanner) version(ctx context.Context, res *Result, prof *profile.Profile, base string, sel Selector, opts Options, log logrus.FieldLogger) error {
	vf, ok := s.db.Get(prof.Name)
	if !ok {
		if sel.explicit {
			return fmt.Errorf("%w: %s", fingerprint.ErrNoDatabase, prof.Name)
		}
		log.Warn("no fingerprint database, skipping version; run update")
		res.Skipped = append(res.Skipped, "version: no fingerprint database")
		return nil
	}

	v, err := s.resolver.Resolve(ctx, base, prof, vf, resolver.Options{
		Verb:           opts.Verb,
		Threads:        opts.Threads,
		Timeout:        opts.Timeout,
		Header:         opts.Header,
		NoHTMLFallback: opts.NoHTMLFallback,
		OnProgress:     opts.stageProgress(StageVersion),
	})
	if err != nil {
		return err
	}
	res.Version = &v
	return nil
}

// words loads a wordlist. A missing list skips the enumeration with a
// warning.
func (s *Scanner) words(res *Result, prof *profile.Profile, kind wordlist.Kind, log logrus.FieldLogger) ([]string, bool) {
	wl, err := wordlist.Load(s.dataDir, prof.Name, kind)
	if err != nil {
		log.WithError(err).Warnf("skipping %s enumeration", kind)
		res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", kind, err))
		return nil, false
	}
	return wl.Words, true
}

// ScanMany scans targets with at most parallel scans in flight.
// onResult, if set, is called once per finished target, never
// concurrently. Results are returned in target order; targets not started
// because ctx was cancelled are absent.
func (s *Scanner) ScanMany(ctx context.Context, prof *profile.Profile, targets []Target, opts Options, parallel int, onResult func(*Result, error)) ([]*Result, error) {
	if parallel <= 0 {
		parallel = defaults.TargetThreads
	}
	type job struct {
		idx    int
		target Target
	}
	jobs := make([]job, len(targets))
	for i, t := range targets {
		jobs[i] = job{idx: i, target: t}
	}

	// Per-target progress bars would interleave.
	opts.OnProgress = nil

	var mu sync.Mutex
	r := runner.NewRunner[job, *Result](parallel)
	if onResult != nil {
		r.OnProgress = func(_, _ int64, res runner.Result[job, *Result]) {
			mu.Lock()
			defer mu.Unlock()
			onResult(res.Data, res.Error)
		}
	}

	// Scans see the caller's ctx so an interrupt stops their probe
	// dispatch too. A target rejected before a Result exists still gets one
	// carrying the error, so onResult never sees nil.
	results, err := r.Run(ctx, jobs, func(_ context.Context, j job) (*Result, error) {
		res, err := s.Scan(ctx, prof, j.target, opts)
		if res == nil {
			res = &Result{Target: j.target.URL, Host: j.target.Host}
			if err != nil {
				res.Error = err.Error()
			}
		}
		return res, err
	})
	s.log.WithFields(logrus.Fields{
		"targets": len(targets),
		"failed":  r.Stats.Failed,
	}).Debugf("multi-target scan done (%.2f targets/s)", r.Stats.RPS())

	ordered := make([]*Result, len(targets))
	for _, res := range results {
		ordered[res.Input.idx] = res.Data
	}
	out := make([]*Result, 0, len(results))
	for _, res := range ordered {
		if res != nil {
			out = append(out, res)
		}
	}
	return out, err
}
