package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmsprobe/cmsprobe/pkg/logger"
)

func TestRecorder_Probes(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveProbe("GET", 200, nil, 10*time.Millisecond)
	r.ObserveProbe("GET", 200, nil, 20*time.Millisecond)
	r.ObserveProbe("HEAD", 0, errors.New("refused"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.probesTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.probesTotal.WithLabelValues("HEAD", "error")))
}

func TestRecorder_Resolution(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveResolution("drupal", 1, false)
	r.ObserveResolution("drupal", 3, false)
	r.ObserveResolution("drupal", 0, false)
	r.ObserveResolution("drupal", 0, true)

	for _, outcome := range []string{OutcomeExact, OutcomeAmbiguous, OutcomeNone, OutcomeNoEvidence} {
		assert.Equal(t, 1.0, testutil.ToFloat64(r.resolutions.WithLabelValues("drupal", outcome)), outcome)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveProbe("GET", 200, nil, time.Second)
		r.ObserveResolution("wordpress", 1, false)
		r.ObserveFindings("wordpress", "plugin", 2)
		r.ObserveTag("wordpress", "ingested")
		r.ObservePackage("ok")
		r.ObserveScan("wordpress", time.Second)
		require.NoError(t, r.Close(context.Background()))
	})
}

func TestRecorder_Handler(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveFindings("joomla", "theme", 4)
	r.ObserveTag("joomla", "ingested")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cmsprobe_findings_total{cms="joomla",kind="theme"} 4`)
	assert.Contains(t, string(body), `cmsprobe_update_tags_total{cms="joomla",outcome="ingested"} 1`)
}

func TestRecorder_Serve(t *testing.T) {
	t.Parallel()

	r := New()
	addr, err := r.Serve("127.0.0.1:0", logger.Discard())
	require.NoError(t, err)
	defer func() { _ = r.Close(context.Background()) }()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, r.Close(context.Background()))
}
