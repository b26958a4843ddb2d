package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cmsprobe/cmsprobe/pkg/cli"
	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/httpclient"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
	"github.com/cmsprobe/cmsprobe/pkg/update"
	"github.com/cmsprobe/cmsprobe/pkg/wordlist"
)

type updateFlags struct {
	force         bool
	dryRun        bool
	reportDir     string
	skipVersions  bool
	skipWordlists bool
	packagistURL  string
}

func newUpdateCmd(a *app) *cobra.Command {
	var f updateFlags

	cmd := &cobra.Command{
		Use:   string(cli.CommandUpdate) + " [cms...]",
		Short: "Update fingerprint databases and wordlists",
		Long: `Update ingests release tags newer than the newest recorded version of
each tracked major, and refreshes plugin and theme wordlists older than a
year. Without arguments every CMS is updated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUpdate(cmd.Context(), args, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.force, "force", false, "refresh wordlists even when they are fresh")
	fl.BoolVar(&f.dryRun, "dry-run", false, "build but do not save")
	fl.StringVar(&f.reportDir, "report", "", "write a JSON build report per CMS into this directory")
	fl.BoolVar(&f.skipVersions, "skip-versions", false, "do not update fingerprint databases")
	fl.BoolVar(&f.skipWordlists, "skip-wordlists", false, "do not refresh wordlists")
	fl.StringVar(&f.packagistURL, "packagist-url", update.DefaultPackagistURL, "composer metadata URL, one %s for the package")
	_ = fl.MarkHidden("packagist-url")

	return cmd
}

func (a *app) runUpdate(ctx context.Context, args []string, f updateFlags) error {
	profiles := profile.All()
	if len(args) > 0 {
		profiles = profiles[:0:0]
		for _, name := range args {
			p, err := profile.Get(name)
			if err != nil {
				return err
			}
			profiles = append(profiles, p)
		}
	}

	listingClient, err := httpclient.New(func() httpclient.Config {
		c := httpclient.ListingConfig()
		c.Proxy = a.cfg.Proxy
		c.UserAgent = a.cfg.UserAgent
		return c
	}())
	if err != nil {
		return err
	}
	p, err := a.prober(duration.HTTPListing)
	if err != nil {
		return err
	}

	b := update.NewBuilder(update.Options{
		Workspace:    update.NewGitWorkspace(a.cfg.Update.Workspace, a.log),
		Client:       listingClient,
		Prober:       p,
		PackagistURL: f.packagistURL,
		Logger:       a.log,
		Metrics:      a.metrics,
		Notify:       ui.NewNotifier(a.stderr),
	})

	var errs []error
	for _, prof := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.updateOne(ctx, b, prof, f); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			ui.Errorf(a.stderr, "%s: %v", prof.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", prof.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) updateOne(ctx context.Context, b *update.Builder, prof *profile.Profile, f updateFlags) error {
	log := a.log.WithField(logger.FieldCMS, prof.Name)

	if !f.skipVersions && len(prof.Update.Repos) > 0 {
		if err := a.updateVersions(ctx, b, prof, f, log); err != nil {
			return err
		}
	}

	if f.skipWordlists || !prof.CanUpdateWordlists() {
		return nil
	}
	now := time.Now()
	stale := wordlist.IsStale(a.cfg.DataDir, prof.Name, wordlist.KindPlugins, duration.WordlistMaxAge, now) ||
		wordlist.IsStale(a.cfg.DataDir, prof.Name, wordlist.KindThemes, duration.WordlistMaxAge, now)
	if !f.force && !stale {
		log.Debug("wordlists are fresh")
		return nil
	}

	ui.Info(a.stderr, "Refreshing %s plugin and theme lists.", prof.Name)
	plugins, themes, err := b.RefreshWordlists(ctx, prof.Listing)
	if err != nil {
		return err
	}
	if f.dryRun {
		ui.Info(a.stderr, "%s: %d plugins, %d themes (dry run, not saved).", prof.Name, len(plugins), len(themes))
		return nil
	}
	for kind, words := range map[wordlist.Kind][]string{wordlist.KindPlugins: plugins, wordlist.KindThemes: themes} {
		if len(words) == 0 {
			// An empty scrape means the listing changed shape; keep the old list.
			log.Warnf("no %s scraped, keeping the previous list", kind)
			continue
		}
		path, err := wordlist.Save(a.cfg.DataDir, prof.Name, kind, words)
		if err != nil {
			return err
		}
		ui.Info(a.stderr, "Wrote %d %s to %s.", len(words), kind, path)
	}
	return nil
}

func (a *app) updateVersions(ctx context.Context, b *update.Builder, prof *profile.Profile, f updateFlags, log logrus.FieldLogger) error {
	vf, err := fingerprint.Load(a.cfg.DataDir, prof.Name)
	if errors.Is(err, fingerprint.ErrNoDatabase) {
		vf = fingerprint.New(prof.Name)
	} else if err != nil {
		return err
	}

	fresh, err := b.CheckForNewTags(ctx, prof, vf, nil)
	if err != nil {
		return err
	}
	if !fresh {
		ui.Info(a.stderr, "%s is up to date (%s).", prof.Name, vf.Highest())
		return nil
	}

	ui.Info(a.stderr, "Updating %s.", prof.Name)
	out, report, err := b.BuildNewVersions(ctx, prof, vf, nil)
	if err != nil {
		return err
	}
	report.DryRun = f.dryRun
	log.WithFields(logrus.Fields{
		"added":   report.VersionsAdded,
		"skipped": report.TagsSkipped,
	}).Info("database built")

	if f.reportDir != "" {
		if err := report.Write(filepath.Join(f.reportDir, prof.Name+"-update.json")); err != nil {
			return err
		}
	}
	if f.dryRun || report.VersionsAdded == 0 {
		return nil
	}
	if err := out.Save(a.cfg.DataDir); err != nil {
		return err
	}
	ui.Info(a.stderr, "%s: %d version(s) added, newest %s.", prof.Name, report.VersionsAdded, report.NewVersion)
	return nil
}
