// Command cmsprobe identifies CMS versions, plugins and themes of web sites
// and maintains the fingerprint databases it relies on.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cmsprobe/cmsprobe/pkg/cli"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, cancel := cli.SignalContext(duration.ShutdownGrace)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(cli.ReorderArgs(args))

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		ui.Errorf(stderr, "%v", err)
		fmt.Fprintln(stderr, root.UsageString())
		return exitUsage
	default:
		ui.Errorf(stderr, "%v", err)
		return exitError
	}
}
