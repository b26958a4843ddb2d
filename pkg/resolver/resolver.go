// Package resolver turns probe evidence and HTML hints into the most
// precise version set a target allows.
package resolver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/hints"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/tracing"
	"github.com/cmsprobe/cmsprobe/pkg/version"
)

// Result is a resolved candidate list.
type Result struct {
	Versions []string `json:"versions"`

	// IsEmpty is true when no file answered at all, as opposed to files
	// answering with hashes no known version has.
	IsEmpty bool `json:"is_empty"`

	// Hint is the HTML hint that decided the result, if any.
	Hint *hints.Hint `json:"hint,omitempty"`
}

// Options tune one resolution.
type Options struct {
	// Verb is used for existence-only databases (default HEAD).
	Verb string

	Threads int
	Timeout time.Duration
	Header  http.Header

	// NoHTMLFallback restricts resolution to file evidence.
	NoHTMLFallback bool

	OnProgress func(completed, total int64)
}

// Resolver drives the prober for version resolution.
type Resolver struct {
	prober  *prober.Prober
	log     logrus.FieldLogger
	metrics *metrics.Recorder
}

// New creates a Resolver.
func New(p *prober.Prober, log logrus.FieldLogger, rec *metrics.Recorder) *Resolver {
	return &Resolver{prober: p, log: log, metrics: rec}
}

// Fingerprint probes every canonical file of vf under base and matches the
// evidence. A cancelled ctx returns its error and no result.
func (r *Resolver) Fingerprint(ctx context.Context, base string, vf *fingerprint.VersionsFile, opts Options) (Result, fingerprint.Evidence, error) {
	files := vf.Files()
	hashed := vf.HasHashes()

	verb := strings.ToUpper(opts.Verb)
	if verb == "" {
		verb = http.MethodHead
	}
	if hashed {
		verb = http.MethodGet
	}

	tasks := make([]prober.Task, len(files))
	pathOf := make(map[string]string, len(files))
	for i, f := range files {
		u := base + f
		pathOf[u] = f
		tasks[i] = prober.Task{URL: u, Method: verb, Timeout: opts.Timeout, Header: opts.Header}
	}

	outcomes, err := r.prober.RunWithProgress(ctx, tasks, opts.Threads, opts.OnProgress)
	if err != nil {
		return Result{}, nil, err
	}

	ev := make(fingerprint.Evidence)
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		hash := ""
		if hashed {
			hash = o.Hash
		}
		ev[pathOf[o.URL]] = hash
	}

	return Result{
		Versions: vf.Match(ev),
		IsEmpty:  len(ev) == 0,
	}, ev, nil
}

// Merge reconciles a fingerprint result with HTML hints.
//
//   - one match is final;
//   - no match takes the query-parameter hint, else the generator hint, as
//     the sole candidate;
//   - several matches are narrowed by the query-parameter hint, and by the
//     generator hint too when metaNarrows is set. A hint that matches no
//     candidate is ignored.
func Merge(fp Result, hs hints.Set, metaNarrows bool) Result {
	switch len(fp.Versions) {
	case 1:
		return fp
	case 0:
		for _, h := range []*hints.Hint{hs.QueryParam, hs.Meta} {
			if h != nil && h.Version != "" {
				return Result{Versions: []string{h.Version}, IsEmpty: false, Hint: h}
			}
		}
		return fp
	}

	narrowing := []*hints.Hint{hs.QueryParam}
	if metaNarrows {
		narrowing = append(narrowing, hs.Meta)
	}
	for _, h := range narrowing {
		if h == nil || h.Version == "" {
			continue
		}
		if narrowed := Narrow(fp.Versions, h.Version); len(narrowed) > 0 {
			return Result{Versions: narrowed, IsEmpty: false, Hint: h}
		}
	}
	return fp
}

// Narrow keeps the candidates consistent with hint: the exact version if
// present, otherwise every candidate refining it across a '.' or '-'
// boundary.
func Narrow(candidates []string, hint string) []string {
	for _, c := range candidates {
		if c == hint {
			return []string{c}
		}
	}
	var out []string
	for _, c := range candidates {
		if version.HasBoundaryPrefix(c, hint) {
			out = append(out, c)
		}
	}
	return out
}

// Resolve runs Fingerprint and, unless the result is already exact or HTML
// is disabled, merges in the hints found on the base page.
func (r *Resolver) Resolve(ctx context.Context, base string, prof *profile.Profile, vf *fingerprint.VersionsFile, opts Options) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "resolve", tracing.KeyCMS.String(prof.Name), tracing.KeyTarget.String(base))
	defer func() { tracing.End(span, err) }()

	log := r.log.WithFields(logrus.Fields{logger.FieldCMS: prof.Name, logger.FieldTarget: base})

	fp, ev, err := r.Fingerprint(ctx, base, vf, opts)
	if err != nil {
		return Result{}, err
	}
	log.WithField("evidence", len(ev)).Debugf("fingerprint matched %d versions", len(fp.Versions))

	res = fp
	if len(fp.Versions) != 1 && !opts.NoHTMLFallback && prof.HasHints() {
		if body, ok := hints.Fetch(ctx, r.prober, base, opts.Header, opts.Timeout, log); ok {
			hs := hints.NewExtractor(prof.Hints).Extract(body)
			if hs.Empty() {
				log.Debug("no html version hint on base page")
			} else {
				res = Merge(fp, hs, prof.Hints.MetaNarrows)
				if res.Hint != nil {
					log.WithField("source", res.Hint.Source).Debugf("html hint %s applied", res.Hint.Version)
				}
			}
		}
	}

	r.metrics.ObserveResolution(prof.Name, len(res.Versions), res.IsEmpty)
	return res, nil
}
