// Package enumerate brute-forces plugins, themes and interesting paths of a
// CMS installation.
package enumerate

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/tracing"
)

// Finding kinds, also used as metric labels.
const (
	KindPlugins     = "plugins"
	KindThemes      = "themes"
	KindInteresting = "interesting"
)

// Finding is one present plugin, theme or path.
type Finding struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Interesting []Finding `json:"interesting_urls,omitempty"`
}

// Options tune one enumeration.
type Options struct {
	// Verb for folder and file probes when the target is not catch-all
	// (default HEAD).
	Verb string

	Threads int
	Timeout time.Duration
	Header  http.Header

	// Number limits how many wordlist entries are probed (0 = all).
	Number int

	OnProgress func(completed, total int64)
}

// Engine runs enumerations through a prober.
type Engine struct {
	prober  *prober.Prober
	log     logrus.FieldLogger
	metrics *metrics.Recorder
}

// New creates an Engine.
func New(p *prober.Prober, log logrus.FieldLogger, rec *metrics.Recorder) *Engine {
	return &Engine{prober: p, log: log, metrics: rec}
}

func (o Options) verb(det Detection) string {
	if det.CatchAll {
		return http.MethodGet
	}
	if o.Verb == "" {
		return http.MethodHead
	}
	return strings.ToUpper(o.Verb)
}

func (o Options) task(url string, det Detection) prober.Task {
	verb := o.verb(det)
	return prober.Task{
		URL:      url,
		Method:   verb,
		Timeout:  o.Timeout,
		Header:   o.Header,
		KeepBody: verb == http.MethodGet && det.CatchAll,
	}
}

// Plugins probes every name under the profile's plugin base paths and, for
// each plugin found, its interesting module files.
func (e *Engine) Plugins(ctx context.Context, base string, prof *profile.Profile, names []string, det Detection, opts Options) ([]Finding, error) {
	return e.modules(ctx, KindPlugins, base, prof, names, prof.PluginURLs, det, opts)
}

// Themes probes every name under the profile's theme base paths.
func (e *Engine) Themes(ctx context.Context, base string, prof *profile.Profile, names []string, det Detection, opts Options) ([]Finding, error) {
	return e.modules(ctx, KindThemes, base, prof, names, prof.ThemeURLs, det, opts)
}

type candidate struct {
	name  string
	order int
	dir   string
}

func (e *Engine) modules(ctx context.Context, kind, base string, prof *profile.Profile, names []string, urls func(base, name string) []string, det Detection, opts Options) (found []Finding, err error) {
	ctx, span := tracing.Start(ctx, "enumerate."+kind, tracing.KeyCMS.String(prof.Name), tracing.KeyTarget.String(base))
	defer func() { tracing.End(span, err) }()

	if opts.Number > 0 && opts.Number < len(names) {
		names = names[:opts.Number]
	}

	var tasks []prober.Task
	candidates := make(map[string]candidate)
	for _, name := range names {
		for i, dir := range urls(base, name) {
			probe := dir
			if det.Method == MethodNotFound {
				probe = dir + prof.ModuleCommonFile
			}
			candidates[probe] = candidate{name: name, order: i, dir: dir}
			tasks = append(tasks, opts.task(probe, det))
		}
	}

	outcomes, err := e.prober.RunWithProgress(ctx, tasks, opts.Threads, opts.OnProgress)
	if err != nil {
		return nil, err
	}

	best := make(map[string]candidate)
	for _, o := range outcomes {
		if !det.Present(o) {
			continue
		}
		c := candidates[o.URL]
		if prev, ok := best[c.name]; !ok || c.order < prev.order {
			best[c.name] = c
		}
	}

	found = make([]Finding, 0, len(best))
	for _, c := range best {
		found = append(found, Finding{Name: c.name, URL: c.dir})
	}
	sortFindings(found)

	if kind == KindPlugins && len(found) > 0 && len(prof.InterestingModuleURLs) > 0 {
		if err := e.moduleFiles(ctx, prof, found, det, opts); err != nil {
			return nil, err
		}
	}

	e.metrics.ObserveFindings(prof.Name, kind, len(found))
	e.log.WithFields(logrus.Fields{logger.FieldCMS: prof.Name, logger.FieldTarget: base}).Debugf("%d %s found", len(found), kind)
	return found, nil
}

// moduleFiles attaches present interesting module files to each finding.
func (e *Engine) moduleFiles(ctx context.Context, prof *profile.Profile, found []Finding, det Detection, opts Options) error {
	type ref struct {
		idx  int
		path profile.Path
	}
	var tasks []prober.Task
	refs := make(map[string]ref)
	for i, f := range found {
		for _, p := range prof.InterestingModuleURLs {
			u := f.URL + p.Path
			refs[u] = ref{idx: i, path: p}
			tasks = append(tasks, opts.task(u, det))
		}
	}

	outcomes, err := e.prober.Run(ctx, tasks, opts.Threads)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if !det.Found(o) {
			continue
		}
		r := refs[o.URL]
		found[r.idx].Interesting = append(found[r.idx].Interesting, Finding{
			Name:        r.path.Path,
			URL:         o.URL,
			Description: r.path.Description,
		})
	}
	for i := range found {
		sortFindings(found[i].Interesting)
	}
	return nil
}

// Interesting probes the profile's interesting paths.
func (e *Engine) Interesting(ctx context.Context, base string, prof *profile.Profile, det Detection, opts Options) (found []Finding, err error) {
	ctx, span := tracing.Start(ctx, "enumerate."+KindInteresting, tracing.KeyCMS.String(prof.Name), tracing.KeyTarget.String(base))
	defer func() { tracing.End(span, err) }()

	tasks := make([]prober.Task, len(prof.InterestingURLs))
	paths := make(map[string]profile.Path, len(prof.InterestingURLs))
	for i, p := range prof.InterestingURLs {
		u := base + p.Path
		paths[u] = p
		tasks[i] = opts.task(u, det)
	}

	outcomes, err := e.prober.RunWithProgress(ctx, tasks, opts.Threads, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		if !det.Found(o) {
			continue
		}
		p := paths[o.URL]
		found = append(found, Finding{Name: p.Path, URL: o.URL, Description: p.Description})
	}
	sortFindings(found)

	e.metrics.ObserveFindings(prof.Name, KindInteresting, len(found))
	return found, nil
}

func sortFindings(f []Finding) {
	sort.Slice(f, func(i, j int) bool { return f[i].Name < f[j].Name })
}
