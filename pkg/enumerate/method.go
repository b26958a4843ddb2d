package enumerate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
)

// Method decides which answer means "present" for a plugin or theme folder.
type Method string

const (
	// MethodForbidden: existing folders answer 403.
	MethodForbidden Method = "forbidden"

	// MethodNotFound: folders answer 404 either way, so a file common to
	// every module is probed instead.
	MethodNotFound Method = "not_found"

	// MethodOK: existing folders answer 200.
	MethodOK Method = "ok"
)

// ParseMethod validates a user supplied method. Empty means auto-detect.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MethodForbidden, MethodNotFound, MethodOK:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// Detection describes how a target answers.
type Detection struct {
	Method Method `json:"method"`

	// CatchAll is set when a random path answers 200. Enumeration then
	// GETs every candidate and discards bodies equal to Baseline.
	CatchAll bool   `json:"catch_all"`
	Baseline uint32 `json:"-"`
}

// BodyHash is the murmur3 hash compared against a catch-all baseline.
func BodyHash(body []byte) uint32 {
	return murmur3.Sum32(body)
}

// Present reports whether a module probe counts as "present" under d: a
// 403 for MethodForbidden, otherwise a 200 that is not the catch-all page.
func (d Detection) Present(out prober.Outcome) bool {
	if d.Method == MethodForbidden {
		return out.Err == nil && out.Status == http.StatusForbidden
	}
	return d.Found(out)
}

// Found reports whether a plain file probe found something, filtering
// catch-all answers.
func (d Detection) Found(out prober.Outcome) bool {
	if out.Err != nil || out.Status != http.StatusOK {
		return false
	}
	return !d.CatchAll || BodyHash(out.Body) != d.Baseline
}

// Detect probes the profile's forbidden folder, its regular files and a
// random path. override, when set, replaces the detected method; the
// catch-all check runs either way.
func (e *Engine) Detect(ctx context.Context, base string, prof *profile.Profile, override Method, opts Options) (Detection, error) {
	random := randomTask(base, opts)
	tasks := []prober.Task{random}
	if override == "" {
		tasks = append(tasks, prober.Task{URL: base + prof.ForbiddenURL, Method: http.MethodGet, Timeout: opts.Timeout, Header: opts.Header})
		for _, f := range prof.RegularFiles {
			tasks = append(tasks, prober.Task{URL: base + f, Method: http.MethodGet, Timeout: opts.Timeout, Header: opts.Header, KeepBody: true})
		}
	}

	outcomes, err := e.prober.Run(ctx, tasks, opts.Threads)
	if err != nil {
		return Detection{}, err
	}
	byURL := make(map[string]prober.Outcome, len(outcomes))
	for _, o := range outcomes {
		byURL[o.URL] = o
	}

	det := e.baseline(base, byURL[random.URL])

	if override != "" {
		det.Method = override
		return det, nil
	}

	regular := false
	for _, f := range prof.RegularFiles {
		if det.Found(byURL[base+f]) {
			regular = true
			break
		}
	}
	if !regular {
		return Detection{}, fmt.Errorf("%w: no regular %s file answered at %s", ErrNoScanningMethod, prof.Name, base)
	}

	folder := byURL[base+prof.ForbiddenURL]
	switch {
	case folder.Err != nil:
		return Detection{}, fmt.Errorf("%w: %v", ErrNoScanningMethod, folder.Err)
	case folder.Status == http.StatusForbidden:
		det.Method = MethodForbidden
	case folder.Status == http.StatusNotFound:
		det.Method = MethodNotFound
	case folder.Status == http.StatusOK:
		det.Method = MethodOK
	default:
		return Detection{}, fmt.Errorf("%w: %s answered %d", ErrNoScanningMethod, prof.ForbiddenURL, folder.Status)
	}

	e.log.WithField(logger.FieldTarget, base).Debugf("scanning method %s", det.Method)
	return det, nil
}

// Baseline only runs the catch-all check. It serves scans that enumerate
// interesting paths without plugins or themes.
func (e *Engine) Baseline(ctx context.Context, base string, opts Options) (Detection, error) {
	random := randomTask(base, opts)
	outcomes, err := e.prober.Run(ctx, []prober.Task{random}, 1)
	if err != nil {
		return Detection{}, err
	}
	var out prober.Outcome
	if len(outcomes) > 0 {
		out = outcomes[0]
	}
	return e.baseline(base, out), nil
}

func randomTask(base string, opts Options) prober.Task {
	return prober.Task{
		URL:      base + uuid.NewString() + "/",
		Method:   http.MethodGet,
		Timeout:  opts.Timeout,
		Header:   opts.Header,
		KeepBody: true,
	}
}

func (e *Engine) baseline(base string, random prober.Outcome) Detection {
	var det Detection
	if random.OK() {
		det.CatchAll = true
		det.Baseline = BodyHash(random.Body)
		e.log.WithField(logger.FieldTarget, base).Info("target answers 200 for unknown paths, comparing bodies")
	}
	return det
}
