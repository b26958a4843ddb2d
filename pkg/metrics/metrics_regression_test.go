// Regression tests for concurrent use of one Recorder by many probe workers.
package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ConcurrentObserve(t *testing.T) {
	t.Parallel()

	r := New()

	const goroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				r.ObserveProbe("HEAD", 404, nil, time.Duration(i)*time.Millisecond)
				r.ObserveFindings("drupal", "plugin", 1)
				r.ObserveResolution("drupal", i%3, false)
			}
		}()
	}
	wg.Wait()

	total := float64(goroutines * perGoroutine)
	assert.Equal(t, total, testutil.ToFloat64(r.probesTotal.WithLabelValues("HEAD", "404")))
	assert.Equal(t, total, testutil.ToFloat64(r.findingsTotal.WithLabelValues("drupal", "plugin")))
}

func TestRecorder_GatherDuringObserve(t *testing.T) {
	t.Parallel()

	r := New()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			r.ObserveTag("joomla", "ingested")
			r.ObserveScan("joomla", time.Duration(i)*time.Millisecond)
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := r.Registry().Gather()
		require.NoError(t, err)
	}
	<-done
	assert.Equal(t, 500.0, testutil.ToFloat64(r.tagsTotal.WithLabelValues("joomla", "ingested")))
}
