package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cmsprobe/cmsprobe/pkg/cli"
	"github.com/cmsprobe/cmsprobe/pkg/enumerate"
	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/scan"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
)

type scanFlags struct {
	url            string
	urlFile        string
	enumerate      string
	verb           string
	method         string
	number         int
	noHTMLFallback bool
	host           string
	headers        []string
	output         string
	noProgress     bool
}

func newScanCmd(a *app) *cobra.Command {
	var f scanFlags

	cmd := &cobra.Command{
		Use:   string(cli.CommandScan) + " [cms]",
		Short: "Scan one or many sites",
		Long: `Scan resolves the CMS version and enumerates plugins, themes and
interesting paths. Without a CMS name the CMS is identified first.

The legacy order "scan <cms> -u URL" is accepted too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.url, "url", "u", "", "target URL")
	fl.StringVarP(&f.urlFile, "url-file", "U", "", `file of targets, one "url [host]" per line`)
	fl.StringVarP(&f.enumerate, "enumerate", "e", "a", "what to enumerate: a (all) or any of v, p, t, i")
	fl.IntP("threads", "t", 0, "probe workers per target")
	fl.Int("threads-targets", 0, "targets scanned in parallel with -U")
	fl.Duration("timeout", 0, "per-request timeout")
	fl.StringVar(&f.verb, "verb", "head", "verb for existence probes (head or get)")
	fl.StringVar(&f.method, "method", "", "force the scanning method (forbidden, not_found, ok)")
	fl.IntVarP(&f.number, "number", "n", 0, "probe only the first N wordlist entries (0 = all)")
	fl.BoolVar(&f.noHTMLFallback, "no-html-fallback", false, "never read the homepage for version hints")
	fl.StringVar(&f.host, "host", "", "Host header override, for scanning by IP")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, `extra request header "Name: value" (repeatable)`)
	fl.StringVarP(&f.output, "output", "o", "standard", "output format (standard, json)")
	fl.BoolVar(&f.noProgress, "no-progress", false, "hide progress bars")

	bindFlags(a.v, fl, map[string]string{
		"threads":         "threads",
		"threads_targets": "threads-targets",
		"timeout":         "timeout",
	})
	return cmd
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func (a *app) runScan(cmd *cobra.Command, args []string, f scanFlags) error {
	ctx := cmd.Context()

	if (f.url == "") == (f.urlFile == "") {
		return usageErr("exactly one of --url or --url-file is required")
	}
	sel, err := scan.ParseSelector(f.enumerate)
	if err != nil {
		return usageErr("%v", err)
	}
	method, err := enumerate.ParseMethod(f.method)
	if err != nil {
		return usageErr("%v", err)
	}
	format, err := cli.ParseFormat(f.output)
	if err != nil {
		return usageErr("%v", err)
	}
	header, err := cli.ParseHeaders(f.headers)
	if err != nil {
		return usageErr("%v", err)
	}
	switch v := strings.ToUpper(f.verb); v {
	case "HEAD", "GET":
		f.verb = v
	default:
		return usageErr("--verb must be head or get, got %q", f.verb)
	}

	var prof *profile.Profile
	if len(args) == 1 {
		if prof, err = profile.Get(args[0]); err != nil {
			return err
		}
	}

	if format == cli.FormatStandard {
		ui.PrintBanner(a.stderr)
	}

	db, err := fingerprint.LoadAll(a.cfg.DataDir, profile.Names(), a.log)
	if err != nil {
		return err
	}
	p, err := a.prober(a.cfg.Timeout)
	if err != nil {
		return err
	}
	scanner := scan.New(scan.Config{
		Prober:   p,
		Database: db,
		DataDir:  a.cfg.DataDir,
		Logger:   a.log,
		Metrics:  a.metrics,
	})

	opts := scan.Options{
		Enumerate:      sel,
		Threads:        a.cfg.Threads,
		Timeout:        a.cfg.Timeout,
		Verb:           f.verb,
		Header:         header,
		Method:         method,
		Number:         f.number,
		NoHTMLFallback: f.noHTMLFallback,
	}

	emit := func(res *scan.Result) error {
		if format == cli.FormatJSON {
			return ui.WriteJSON(a.stdout, res)
		}
		ui.RenderResult(a.stdout, res)
		return nil
	}

	if f.url != "" {
		progress := ui.NewProgress(a.stderr, format == cli.FormatStandard && !f.noProgress)
		opts.OnProgress = progress.Update
		res, err := scanner.Scan(ctx, prof, scan.Target{URL: f.url, Host: f.host}, opts)
		progress.Finish()
		if res != nil {
			if werr := emit(res); werr != nil {
				return werr
			}
		}
		return err
	}

	targets, err := readTargetFile(f.urlFile, f.host)
	if err != nil {
		return err
	}
	var emitErr error
	_, err = scanner.ScanMany(ctx, prof, targets, opts, a.cfg.TargetThreads, func(res *scan.Result, serr error) {
		if serr != nil {
			a.log.WithError(serr).WithField(logger.FieldTarget, res.Target).Warn("scan failed")
		}
		// Sites with nothing to report stay quiet in the console report.
		if format == cli.FormatStandard && serr == nil && !res.AnythingFound() {
			a.log.WithField(logger.FieldTarget, res.Target).Debug("nothing found")
			return
		}
		if werr := emit(res); werr != nil && emitErr == nil {
			emitErr = werr
		}
	})
	if err != nil {
		return err
	}
	return emitErr
}

// readTargetFile reads -U. host applies to lines that name none.
func readTargetFile(path, host string) ([]scan.Target, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	targets, err := scan.ReadTargets(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(targets) == 0 {
		return nil, usageErr("%s lists no targets", path)
	}
	for i := range targets {
		if targets[i].Host == "" {
			targets[i].Host = host
		}
	}
	return targets, nil
}
