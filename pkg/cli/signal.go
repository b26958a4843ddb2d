package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext returns a context cancelled on SIGINT/SIGTERM. Probes
// already in flight finish; nothing new is dispatched. A second signal
// within gracePeriod exits immediately.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(10 * time.Second)
//	defer cancel()
func SignalContext(gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	return signalContext(gracePeriod, nil, nil, os.Stderr)
}

// sigChan and exitFn replace the real signal channel and os.Exit in tests.
func signalContext(gracePeriod time.Duration, sigChan chan os.Signal, exitFn func(int), stderr io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()
		select {
		case <-sigChan:
			fmt.Fprintln(stderr)
			fmt.Fprintln(stderr, "Interrupted, waiting for in-flight requests (press Ctrl+C again to quit)...")
			cancel()

			select {
			case <-sigChan:
				exitFn(130)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
