// Package metrics exposes probe, resolution and database build counters for
// Prometheus scraping. A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
)

// Resolution outcomes.
const (
	OutcomeExact      = "exact"
	OutcomeAmbiguous  = "ambiguous"
	OutcomeNone       = "none"
	OutcomeNoEvidence = "no_evidence"
)

// Recorder owns a private registry so tests and embedders never collide
// with the default one.
type Recorder struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	probeSeconds  *prometheus.HistogramVec
	resolutions   *prometheus.CounterVec
	findingsTotal *prometheus.CounterVec
	tagsTotal     *prometheus.CounterVec
	packagesTotal *prometheus.CounterVec
	scanDuration  *prometheus.GaugeVec

	mu     sync.Mutex
	server *http.Server
}

// New creates a recorder with every collector registered.
func New() *Recorder {
	ns := defaults.ToolName
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "probes_total",
			Help:      "HTTP probes sent, by verb and status (or error class)",
		}, []string{"verb", "status"}),
		probeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "probe_duration_seconds",
			Help:      "Probe round-trip time",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
		}, []string{"verb"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "version_resolutions_total",
			Help:      "Version resolutions by outcome",
		}, []string{"cms", "outcome"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "findings_total",
			Help:      "Plugins, themes and interesting paths found",
		}, []string{"cms", "kind"}),
		tagsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "update_tags_total",
			Help:      "Upstream tags handled by database builds",
		}, []string{"cms", "outcome"}),
		packagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "update_packages_resolved_total",
			Help:      "Composer packages resolved to install folders",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "scan_duration_seconds",
			Help:      "Duration of the last scan per CMS",
		}, []string{"cms"}),
	}

	r.registry.MustRegister(
		r.probesTotal,
		r.probeSeconds,
		r.resolutions,
		r.findingsTotal,
		r.tagsTotal,
		r.packagesTotal,
		r.scanDuration,
	)
	return r
}

// ObserveProbe records one probe. Transport failures are labelled "error".
func (r *Recorder) ObserveProbe(verb string, status int, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if err == nil {
		label = strconv.Itoa(status)
	}
	r.probesTotal.WithLabelValues(verb, label).Inc()
	r.probeSeconds.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// ObserveResolution classifies a resolved candidate list.
func (r *Recorder) ObserveResolution(cms string, candidates int, isEmpty bool) {
	if r == nil {
		return
	}
	outcome := OutcomeNone
	switch {
	case isEmpty:
		outcome = OutcomeNoEvidence
	case candidates == 1:
		outcome = OutcomeExact
	case candidates > 1:
		outcome = OutcomeAmbiguous
	}
	r.resolutions.WithLabelValues(cms, outcome).Inc()
}

// ObserveFindings adds n findings of kind (plugin, theme, interesting).
func (r *Recorder) ObserveFindings(cms, kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.findingsTotal.WithLabelValues(cms, kind).Add(float64(n))
}

// ObserveTag records a tag outcome: ingested, prerelease, checkout_failed.
func (r *Recorder) ObserveTag(cms, outcome string) {
	if r == nil {
		return
	}
	r.tagsTotal.WithLabelValues(cms, outcome).Inc()
}

// ObservePackage records a packagist lookup outcome: ok, failed, duplicate.
func (r *Recorder) ObservePackage(outcome string) {
	if r == nil {
		return
	}
	r.packagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScan sets the last scan duration for cms.
func (r *Recorder) ObserveScan(cms string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.scanDuration.WithLabelValues(cms).Set(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve starts the metrics endpoint on addr under /metrics and returns the
// bound address. Listen errors are returned; serve errors are logged.
func (r *Recorder) Serve(addr string, log logrus.FieldLogger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  duration.ServerShutdown,
		WriteTimeout: duration.ContextShort,
	}

	r.mu.Lock()
	r.server = srv
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	return ln.Addr().String(), nil
}

// Close shuts the metrics server down, if running.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	srv := r.server
	r.server = nil
	r.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
