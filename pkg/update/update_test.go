package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/jsonutil"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
	"github.com/cmsprobe/cmsprobe/pkg/retry"
)

type notices struct {
	mu    sync.Mutex
	lines []string
}

func (n *notices) notify(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, fmt.Sprintf(format, args...))
}

func mustProfile(t *testing.T, name string) *profile.Profile {
	t.Helper()
	p, err := profile.Get(name)
	require.NoError(t, err)
	return p
}

func joomlaDB() *fingerprint.VersionsFile {
	vf := fingerprint.New("joomla")
	vf.Update(map[string]fingerprint.Signature{
		"3.8.0": {"media/system/js/core.js": fingerprint.Hash([]byte("core 3.8.0"))},
	})
	return vf
}

func TestNewTags(t *testing.T) {
	t.Parallel()

	tags := &fakeTags{tags: []string{"1.5.0", "3.7.0", "3.8.0", "3.9.0", "3.10.0-alpha1", "4.0.0", "3.9.0"}}
	b := NewBuilder(Options{Tags: tags})

	got, err := b.NewTags(context.Background(), mustProfile(t, "joomla"), joomlaDB(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3.9.0", "3.10.0-alpha1", "4.0.0"}, got)
	assert.Equal(t, []string{"https://github.com/joomla/joomla-cms.git"}, tags.urls)

	got, err = b.NewTags(context.Background(), mustProfile(t, "joomla"), joomlaDB(), []string{"3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3.9.0", "3.10.0-alpha1"}, got, "explicit majors restrict the set")
}

func TestNewTags_TagPrefix(t *testing.T) {
	t.Parallel()

	tags := &fakeTags{tags: []string{"v3.9.0", "v3.9.1", "MOODLE_39_STABLE", "3.9.2"}}
	b := NewBuilder(Options{Tags: tags})
	vf := fingerprint.New("moodle")
	vf.Update(map[string]fingerprint.Signature{"3.9.0": {"lib/upgrade.txt": "x"}})

	got, err := b.NewTags(context.Background(), mustProfile(t, "moodle"), vf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3.9.1"}, got)
}

func TestCheckForNewTags(t *testing.T) {
	t.Parallel()

	prof := mustProfile(t, "joomla")

	b := NewBuilder(Options{Tags: &fakeTags{tags: []string{"3.7.0", "3.8.0"}}})
	found, err := b.CheckForNewTags(context.Background(), prof, joomlaDB(), nil)
	require.NoError(t, err)
	assert.False(t, found)

	b = NewBuilder(Options{Tags: &fakeTags{tags: []string{"3.8.1"}}})
	found, err = b.CheckForNewTags(context.Background(), prof, joomlaDB(), nil)
	require.NoError(t, err)
	assert.True(t, found)

	b = NewBuilder(Options{Tags: &fakeTags{tags: []string{"3.8.0", "3.10.0-alpha1"}}})
	found, err = b.CheckForNewTags(context.Background(), prof, joomlaDB(), nil)
	require.NoError(t, err)
	assert.False(t, found, "a pre-release alone is not an update")

	boom := errors.New("remote unreachable")
	b = NewBuilder(Options{Tags: &fakeTags{err: boom}})
	_, err = b.CheckForNewTags(context.Background(), prof, joomlaDB(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestBuildNewVersions_SkipsPrereleases(t *testing.T) {
	t.Parallel()

	ws := &fakeWorkspace{
		root: t.TempDir(),
		content: map[string]map[string]map[string]string{
			"joomla-cms": {
				"3.9.0":         {"media/system/js/core.js": "core 3.9.0", "media/system/js/validate.js": "validate 3.9.0"},
				"3.10.0-alpha1": {"media/system/js/core.js": "core alpha"},
			},
		},
	}
	var n notices
	rec := metrics.New()
	b := NewBuilder(Options{
		Tags:      &fakeTags{tags: []string{"3.8.0", "3.9.0", "3.10.0-alpha1"}},
		Workspace: ws,
		Logger:    logger.Discard(),
		Metrics:   rec,
		Notify:    n.notify,
	})

	vf := joomlaDB()
	out, report, err := b.BuildNewVersions(context.Background(), mustProfile(t, "joomla"), vf, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"3.8.0", "3.9.0"}, out.VersionList())
	assert.Equal(t, fingerprint.Signature{
		"media/system/js/core.js": fingerprint.Hash([]byte("core 3.9.0")),
	}, out.Versions["3.9.0"], "only files already in the database are hashed")
	assert.Equal(t, []string{"3.8.0"}, vf.VersionList(), "input is not modified")

	assert.Equal(t, []string{"joomla-cms@3.9.0"}, ws.checkouts)
	assert.Equal(t, []string{"Version 3.10.0-alpha1 is not a release. Skipping."}, n.lines)

	assert.Equal(t, "3.8.0", report.PreviousVersion)
	assert.Equal(t, "3.9.0", report.NewVersion)
	assert.Equal(t, 1, report.VersionsAdded)
	assert.Equal(t, 1, report.TagsSkipped)
}

func TestBuildNewVersions_CompanionMissingTag(t *testing.T) {
	t.Parallel()

	ws := &fakeWorkspace{
		root: t.TempDir(),
		content: map[string]map[string]map[string]string{
			"framework": {
				"4.1.0": {"framework/css/UploadField.css": "fw 4.1.0"},
				"4.2.0": {"framework/css/UploadField.css": "fw 4.2.0"},
			},
			"cms": {
				"4.1.0": {"cms/css/layout.css": "cms 4.1.0"},
			},
		},
	}
	var n notices
	b := NewBuilder(Options{
		Tags:      &fakeTags{tags: []string{"4.1.0", "4.2.0"}},
		Workspace: ws,
		Notify:    n.notify,
	})

	out, report, err := b.BuildNewVersions(context.Background(), mustProfile(t, "silverstripe"), fingerprint.New("silverstripe"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"4.1.0"}, out.VersionList())
	assert.Equal(t, fingerprint.Signature{
		"framework/css/UploadField.css": fingerprint.Hash([]byte("fw 4.1.0")),
		"cms/css/layout.css":            fingerprint.Hash([]byte("cms 4.1.0")),
	}, out.Versions["4.1.0"], "empty database is seeded from the regular files")
	assert.Equal(t, []string{"Version 4.2.0 does not exist on `cms`. Skipping."}, n.lines)
	assert.Equal(t, []string{"silverstripe/framework", "silverstripe/cms"}, ws.prepared)
	require.Len(t, report.Changes, 2)
	assert.Equal(t, TagCheckoutFailed, report.Changes[1].Type)
	assert.Equal(t, "cms", report.Changes[1].Reason)
}

func TestBuildNewVersions_TagPrefixCheckout(t *testing.T) {
	t.Parallel()

	ws := &fakeWorkspace{
		root: t.TempDir(),
		content: map[string]map[string]map[string]string{
			"moodle": {"v4.0.1": {"lib/upgrade.txt": "upgrade 4.0.1"}},
		},
	}
	b := NewBuilder(Options{Tags: &fakeTags{tags: []string{"v4.0.1"}}, Workspace: ws})

	out, _, err := b.BuildNewVersions(context.Background(), mustProfile(t, "moodle"), fingerprint.New("moodle"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"4.0.1"}, out.VersionList())
	assert.Equal(t, []string{"moodle@v4.0.1"}, ws.checkouts)
}

func TestBuildNewVersions_NothingNew(t *testing.T) {
	t.Parallel()

	ws := &fakeWorkspace{root: t.TempDir()}
	b := NewBuilder(Options{Tags: &fakeTags{tags: []string{"3.8.0"}}, Workspace: ws})

	out, report, err := b.BuildNewVersions(context.Background(), mustProfile(t, "joomla"), joomlaDB(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3.8.0"}, out.VersionList())
	assert.Empty(t, ws.prepared, "workspace untouched")
	assert.Equal(t, "3.8.0", report.NewVersion)
}

func TestBuildNewVersions_Cancelled(t *testing.T) {
	t.Parallel()

	ws := &fakeWorkspace{root: t.TempDir()}
	b := NewBuilder(Options{Tags: &fakeTags{tags: []string{"3.9.0"}}, Workspace: ws})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := b.BuildNewVersions(ctx, mustProfile(t, "joomla"), joomlaDB(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "misc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "misc", "drupal.js"), []byte("js"), 0o644))

	sig, err := HashFiles(root, []string{"misc/drupal.js", "core/misc/drupal.js"})
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Signature{"misc/drupal.js": fingerprint.Hash([]byte("js"))}, sig)
}

func TestReport_Write(t *testing.T) {
	t.Parallel()

	r := &Report{CMS: "drupal", PreviousVersion: "10.1.0", NewVersion: "10.2.0"}
	r.add(TagIngested, "10.2.0", "")
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, jsonutil.Unmarshal(data, &got))
	assert.Equal(t, 1, got.VersionsAdded)
	assert.Equal(t, "10.2.0", got.Changes[0].Version)
}

func listingServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.RequestURI()]
		if !ok {
			_, _ = w.Write([]byte("<html><body></body></html>"))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScrape_PagePagination(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, map[string]string{
		"/plugins/1/": `<div class="card"><a href="https://wordpress.org/plugins/akismet/">Akismet</a></div>
		                <div class="card"><a href="/plugins/jetpack/?ref=x">Jetpack</a></div>`,
		"/plugins/2/": `<div class="card"><a href="/plugins/yoast/">Yoast</a></div>`,
	})
	b := NewBuilder(Options{Client: srv.Client()})
	listing := &profile.Listing{PerPage: 2, Pagination: profile.PaginationPage, FirstPage: 1}
	src := profile.ListingSource{URL: srv.URL + "/plugins/%d/", Selector: ".card > a", Attr: "href"}

	names, err := b.Scrape(context.Background(), listing, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"akismet", "jetpack", "yoast"}, names)
}

func TestScrape_SkipPaginationAndMax(t *testing.T) {
	t.Parallel()

	srv := listingServer(t, map[string]string{
		"/addons?start=0": `<td><a>silverstripe/blog</a></td><td><a>silverstripe/userforms</a></td>`,
		"/addons?start=2": `<td><a>dnadesign/elemental</a></td><td><a>symbiote/gridfieldextensions</a></td>`,
		"/addons?start=4": `<td><a>never/reached</a></td>`,
	})
	b := NewBuilder(Options{Client: srv.Client()})
	listing := &profile.Listing{PerPage: 2, Pagination: profile.PaginationSkip, Max: 3}
	src := profile.ListingSource{URL: srv.URL + "/addons?start=%d", Selector: "td > a"}

	names, err := b.Scrape(context.Background(), listing, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"silverstripe/blog", "silverstripe/userforms", "dnadesign/elemental"}, names)
}

func TestScrape_RepeatedPageStops(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a class="m" href="/project/views">Views</a>`))
	}))
	defer srv.Close()

	b := NewBuilder(Options{Client: srv.Client()})
	listing := &profile.Listing{PerPage: 25, Pagination: profile.PaginationPage}
	names, err := b.Scrape(context.Background(), listing, profile.ListingSource{URL: srv.URL + "/?page=%d", Selector: "a.m", Attr: "href"})
	require.NoError(t, err)
	assert.Equal(t, []string{"views"}, names)
}

func TestScrape_FirstPageError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	b := NewBuilder(Options{Client: srv.Client()})
	listing := &profile.Listing{PerPage: 25, Pagination: profile.PaginationPage}
	_, err := b.Scrape(context.Background(), listing, profile.ListingSource{URL: srv.URL + "/?page=%d", Selector: "a"})
	assert.Error(t, err)
}

func TestLastSegment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "akismet", lastSegment("https://wordpress.org/plugins/akismet/"))
	assert.Equal(t, "views", lastSegment("/project/views?x=1"))
	assert.Equal(t, "", lastSegment("/"))
}

func packagistServer(t *testing.T, fail map[string]bool) *httptest.Server {
	t.Helper()
	docs := map[string]string{
		"silverstripe/blog": `{"packages":{"silverstripe/blog":{"2.0.0":{"extra":[]},"3.0.0":{"extra":{"installer-name":"blog"}}}}}`,
		"richardsjoqvist/silverstripe-localdate": `{"packages":{"richardsjoqvist/silverstripe-localdate":{"1.0.0":{"extra":{"installer-name":"localdate"}},"1.1.0":{"extra":{"installer-name":"localdate2"}}}}}`,
		"other/blog":         `{"packages":{"other/blog":{"1.0.0":{}}}}`,
		"silverstripe/admin": `not json`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pkg := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/p/"), ".json")
		if fail[pkg] {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte(docs[pkg]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func packagistBuilder(t *testing.T, srv *httptest.Server, n *notices) *Builder {
	t.Helper()
	p := prober.New(prober.Options{
		Client:  srv.Client(),
		Backoff: &retry.Config{MaxAttempts: 1},
	})
	return NewBuilder(Options{
		Prober:       p,
		PackagistURL: srv.URL + "/p/%s.json",
		Logger:       logger.Discard(),
		Notify:       n.notify,
	})
}

func TestResolveFolders(t *testing.T) {
	t.Parallel()

	var n notices
	b := packagistBuilder(t, packagistServer(t, nil), &n)

	folders, err := b.ResolveFolders(context.Background(), []string{
		"silverstripe/blog",
		"richardsjoqvist/silverstripe-localdate",
		"other/blog",
		"silverstripe/admin",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"blog", "localdate2", "admin"}, folders)
	assert.Equal(t, []string{"Folder blog is duplicated (current other/blog, previous silverstripe/blog)"}, n.lines)
}

func TestResolveFolders_FailureSurfaced(t *testing.T) {
	t.Parallel()

	var n notices
	b := packagistBuilder(t, packagistServer(t, map[string]bool{"silverstripe/admin": true}), &n)

	folders, err := b.ResolveFolders(context.Background(), []string{"silverstripe/blog", "silverstripe/admin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, prober.ErrUnexpectedStatus)
	assert.Equal(t, []string{"blog"}, folders)
}

func TestRefreshWordlists(t *testing.T) {
	t.Parallel()

	_, _, err := NewBuilder(Options{}).RefreshWordlists(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoListing)

	srv := listingServer(t, map[string]string{
		"/m?page=0": `<h2><a href="/project/views">Views</a></h2>`,
		"/t?page=0": `<h2><a href="/project/zen">Zen</a></h2>`,
	})
	b := NewBuilder(Options{Client: srv.Client()})
	listing := &profile.Listing{
		PerPage:    25,
		Pagination: profile.PaginationPage,
		Plugins:    profile.ListingSource{URL: srv.URL + "/m?page=%d", Selector: "h2 > a", Attr: "href"},
		Themes:     profile.ListingSource{URL: srv.URL + "/t?page=%d", Selector: "h2 > a", Attr: "href"},
	}
	plugins, themes, err := b.RefreshWordlists(context.Background(), listing)
	require.NoError(t, err)
	assert.Equal(t, []string{"views"}, plugins)
	assert.Equal(t, []string{"zen"}, themes)
}
