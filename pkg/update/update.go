// Package update maintains the fingerprint databases and wordlists: it finds
// new upstream release tags, hashes the canonical files of each, and scrapes
// plugin and theme listings.
package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/jsonutil"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/tracing"
	"github.com/cmsprobe/cmsprobe/pkg/version"
)

// Tag outcomes, also used as metric labels.
const (
	TagIngested       = "ingested"
	TagPrerelease     = "prerelease"
	TagCheckoutFailed = "checkout_failed"
)

// DefaultPackagistURL is the composer metadata endpoint.
const DefaultPackagistURL = "http://packagist.org/p/%s.json"

// Options configures a Builder.
type Options struct {
	Tags      TagLister
	Workspace Workspace

	// Client fetches listing pages.
	Client *http.Client

	// Prober fetches packagist metadata with backoff.
	Prober *prober.Prober

	// PackagistURL has one %s verb for the package name.
	PackagistURL string

	Logger  logrus.FieldLogger
	Metrics *metrics.Recorder

	// Notify prints a user-facing notice. Notices are logged at info
	// level either way.
	Notify func(format string, args ...any)
}

// Builder runs database and wordlist updates. One Builder owns a database
// for the duration of a build.
type Builder struct {
	tags         TagLister
	ws           Workspace
	client       *http.Client
	prober       *prober.Prober
	packagistURL string
	log          logrus.FieldLogger
	metrics      *metrics.Recorder
	notify       func(format string, args ...any)
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.Tags == nil {
		opts.Tags = RemoteTags{}
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.PackagistURL == "" {
		opts.PackagistURL = DefaultPackagistURL
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	return &Builder{
		tags:         opts.Tags,
		ws:           opts.Workspace,
		client:       opts.Client,
		prober:       opts.Prober,
		packagistURL: opts.PackagistURL,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		notify:       opts.Notify,
	}
}

func (b *Builder) notice(format string, args ...any) {
	b.log.Infof(format, args...)
	if b.notify != nil {
		b.notify(format, args...)
	}
}

// Report summarizes one database build.
type Report struct {
	Timestamp       string          `json:"timestamp"`
	CMS             string          `json:"cms"`
	PreviousVersion string          `json:"previous_version"`
	NewVersion      string          `json:"new_version"`
	VersionsAdded   int             `json:"versions_added"`
	TagsSkipped     int             `json:"tags_skipped"`
	Changes         []VersionChange `json:"changes"`
	DryRun          bool            `json:"dry_run"`
}

// VersionChange is one tag's fate.
type VersionChange struct {
	Type    string `json:"type"` // ingested, prerelease, checkout_failed
	Version string `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

func (r *Report) add(typ, v, reason string) {
	r.Changes = append(r.Changes, VersionChange{Type: typ, Version: v, Reason: reason})
	if typ == TagIngested {
		r.VersionsAdded++
	} else {
		r.TagsSkipped++
	}
}

// Write stores the report as indented JSON.
func (r *Report) Write(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("update: write report: %w", err)
	}
	enc := jsonutil.NewStreamEncoder(fh)
	enc.SetIndent("  ")
	if err := enc.Encode(r); err != nil {
		fh.Close()
		return fmt.Errorf("update: encode report: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("update: write report: %w", err)
	}
	return nil
}

func majorsOf(prof *profile.Profile, majors []string) []string {
	if len(majors) == 0 {
		return prof.Update.Majors
	}
	return majors
}

// NewTags returns the versions tagged upstream that belong to a tracked
// major, are not recorded yet and are newer than the newest recorded
// version of their major. Pre-releases are included; the build skips them.
func (b *Builder) NewTags(ctx context.Context, prof *profile.Profile, vf *fingerprint.VersionsFile, majors []string) ([]string, error) {
	if len(prof.Update.Repos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRepos, prof.Name)
	}
	majors = majorsOf(prof, majors)

	tags, err := b.tags.ListTags(ctx, prof.Update.Repos[0].URL)
	if err != nil {
		return nil, err
	}

	highest := vf.HighestPerMajor(majors)
	seen := make(map[string]struct{})
	var out []string
	for _, tag := range tags {
		v, ok := prof.TagToVersion(tag)
		if !ok {
			continue
		}
		major, ok := version.MajorOf(v, majors)
		if !ok {
			continue
		}
		if _, known := vf.Versions[v]; known {
			continue
		}
		if h, has := highest[major]; has && !version.Greater(v, h) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	version.Sort(out)
	return out, nil
}

// CheckForNewTags reports whether upstream carries a release newer than the
// newest recorded version of its major. Pre-releases never trigger an
// update since the build skips them.
func (b *Builder) CheckForNewTags(ctx context.Context, prof *profile.Profile, vf *fingerprint.VersionsFile, majors []string) (bool, error) {
	tags, err := b.NewTags(ctx, prof, vf, majors)
	if err != nil {
		return false, err
	}
	for _, v := range tags {
		if version.IsRelease(v) {
			return true, nil
		}
	}
	return false, nil
}

// BuildNewVersions checks out every new release tag, hashes the canonical
// files and returns vf merged with the new signatures. vf itself is not
// modified.
func (b *Builder) BuildNewVersions(ctx context.Context, prof *profile.Profile, vf *fingerprint.VersionsFile, majors []string) (out *fingerprint.VersionsFile, report *Report, err error) {
	ctx, span := tracing.Start(ctx, "update.build", tracing.KeyCMS.String(prof.Name))
	defer func() { tracing.End(span, err) }()

	report = &Report{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		CMS:             prof.Name,
		PreviousVersion: vf.Highest(),
	}

	tags, err := b.NewTags(ctx, prof, vf, majors)
	if err != nil {
		return nil, nil, err
	}
	out = vf.Clone()
	if len(tags) == 0 {
		report.NewVersion = report.PreviousVersion
		return out, report, nil
	}
	if b.ws == nil {
		return nil, nil, errors.New("update: no workspace configured")
	}

	files := vf.Files()
	if len(files) == 0 {
		files = prof.RegularFiles
	}

	if err := b.ws.Prepare(ctx, prof.Name, prof.Update.Repos); err != nil {
		return nil, nil, err
	}

	log := b.log.WithField(logger.FieldCMS, prof.Name)
	sigs := make(map[string]fingerprint.Signature)
next:
	for _, v := range tags {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if !version.IsRelease(v) {
			b.notice("Version %s is not a release. Skipping.", v)
			b.metrics.ObserveTag(prof.Name, TagPrerelease)
			report.add(TagPrerelease, v, "")
			continue
		}

		tag := prof.VersionToTag(v)
		for _, repo := range prof.Update.Repos {
			if err := b.ws.Checkout(ctx, prof.Name, repo, tag); err != nil {
				log.WithField(logger.FieldTag, tag).WithError(err).Debug("checkout failed")
				b.notice("Version %s does not exist on `%s`. Skipping.", v, repo.Name)
				b.metrics.ObserveTag(prof.Name, TagCheckoutFailed)
				report.add(TagCheckoutFailed, v, repo.Name)
				continue next
			}
		}

		sig, err := HashFiles(b.ws.Dir(prof.Name), files)
		if err != nil {
			return nil, nil, err
		}
		if len(sig) == 0 {
			b.notice("Version %s has none of the canonical files. Skipping.", v)
			b.metrics.ObserveTag(prof.Name, TagCheckoutFailed)
			report.add(TagCheckoutFailed, v, "no canonical files")
			continue
		}

		sigs[v] = sig
		b.metrics.ObserveTag(prof.Name, TagIngested)
		report.add(TagIngested, v, "")
		log.WithField(logger.FieldTag, tag).Debugf("hashed %d files", len(sig))
		span.AddEvent("tag ingested", trace.WithAttributes(tracing.KeyTag.String(tag)))
	}

	out.Update(sigs)
	report.NewVersion = out.Highest()
	return out, report, nil
}

// HashFiles hashes each canonical file under root. Files absent from the
// checkout are left out of the signature.
func HashFiles(root string, files []string) (fingerprint.Signature, error) {
	sig := make(fingerprint.Signature, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update: hash %s: %w", f, err)
		}
		sig[f] = fingerprint.Hash(data)
	}
	return sig, nil
}
