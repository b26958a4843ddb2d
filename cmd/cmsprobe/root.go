package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cmsprobe/cmsprobe/pkg/config"
	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/hosterrors"
	"github.com/cmsprobe/cmsprobe/pkg/httpclient"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/ratelimit"
	"github.com/cmsprobe/cmsprobe/pkg/tracing"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
)

var errUsage = errors.New("usage")

// app is the state shared by the subcommands once the root has loaded the
// configuration.
type app struct {
	v       *viper.Viper
	cfgFile string
	noColor bool
	silent  bool

	stdout io.Writer
	stderr io.Writer

	cfg      *config.Config
	log      *logrus.Logger
	metrics  *metrics.Recorder
	shutdown tracing.Shutdown
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   defaults.ToolName,
		Short: "CMS version fingerprinting and plugin enumeration",
		Long: `cmsprobe resolves the version of Drupal, WordPress, Joomla, Moodle and
SilverStripe sites by hashing static files, and enumerates their plugins,
themes and interesting paths.

Examples:
  cmsprobe scan -u http://example.com/ drupal
  cmsprobe scan -U targets.txt -e v -o json
  cmsprobe update drupal
  cmsprobe stats`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./configs/cmsprobe.yaml, ./cmsprobe.yaml, ~/.cmsprobe/cmsprobe.yaml)")
	pf.String("data-dir", defaults.DataDir, "directory holding fingerprint databases and wordlists")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "also log to this file, rotated")
	pf.String("metrics-addr", "", "serve prometheus metrics on this address")
	pf.String("tracing-endpoint", "", "export traces to this OTLP gRPC endpoint")
	pf.String("proxy", "", "http(s):// or socks5:// proxy")
	pf.String("user-agent", defaults.UserAgent, "User-Agent header")
	pf.Int("rate-limit", 0, "max requests per second (0 = unlimited)")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colour")
	pf.BoolVar(&a.silent, "silent", false, "no banner or notices")

	bindFlags(a.v, pf, map[string]string{
		"data_dir":         "data-dir",
		"log.level":        "log-level",
		"log.format":       "log-format",
		"log.file":         "log-file",
		"metrics.addr":     "metrics-addr",
		"tracing.endpoint": "tracing-endpoint",
		"proxy":            "proxy",
		"user_agent":       "user-agent",
		"rate_limit":       "rate-limit",
	})

	root.AddCommand(
		newScanCmd(a),
		newUpdateCmd(a),
		newStatsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	ui.SetNoColor(a.noColor || !ui.IsTerminal(a.stderr))
	ui.SetSilent(a.silent)

	if a.log, err = logger.New(cfg.Log); err != nil {
		return err
	}

	a.metrics = metrics.New()
	if cfg.Metrics.Addr != "" {
		addr, err := a.metrics.Serve(cfg.Metrics.Addr, a.log)
		if err != nil {
			return err
		}
		a.log.WithField("addr", addr).Info("serving metrics")
	}

	a.shutdown, err = tracing.Setup(ctx, tracing.Options{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), duration.ServerShutdown)
	defer cancel()

	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	errs = append(errs, a.metrics.Close(ctx))
	return errors.Join(errs...)
}

// prober builds a Prober from the loaded configuration.
func (a *app) prober(timeout time.Duration) (*prober.Prober, error) {
	probeCfg := httpclient.DefaultConfig()
	probeCfg.Timeout = timeout
	probeCfg.Proxy = a.cfg.Proxy
	probeCfg.UserAgent = a.cfg.UserAgent
	client, err := httpclient.New(probeCfg)
	if err != nil {
		return nil, err
	}

	metaCfg := httpclient.ListingConfig()
	metaCfg.Proxy = a.cfg.Proxy
	metaCfg.UserAgent = a.cfg.UserAgent
	metaClient, err := httpclient.New(metaCfg)
	if err != nil {
		return nil, err
	}

	return prober.New(prober.Options{
		Client:     client,
		MetaClient: metaClient,
		Timeout:    timeout,
		Limiter:    ratelimit.New(ratelimit.Config{RequestsPerSecond: a.cfg.RateLimit, PerHost: true}),
		HostErrors: hosterrors.NewCache(hosterrors.DefaultMaxErrors, duration.HostErrorExpiry),
		Metrics:    a.metrics,
		Logger:     a.log,
	}), nil
}
