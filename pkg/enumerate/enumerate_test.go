package enumerate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmsprobe/cmsprobe/pkg/httpclient"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/metrics"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/prober"
)

// fakeSite answers each path with a fixed status and body. Unknown paths get
// fallback.
type fakeSite struct {
	routes   map[string]int
	bodies   map[string]string
	fallback int
	page     string
}

func (f fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	status, ok := f.routes[path]
	if !ok {
		status = f.fallback
	}
	if status == 0 {
		status = http.StatusNotFound
	}
	w.WriteHeader(status)
	if body, ok := f.bodies[path]; ok {
		_, _ = w.Write([]byte(body))
		return
	}
	_, _ = w.Write([]byte(f.page))
}

func newEngine(t *testing.T, site http.Handler) (*Engine, string) {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	client, err := httpclient.New(httpclient.DefaultConfig())
	require.NoError(t, err)
	p := prober.New(prober.Options{Client: client})
	return New(p, logger.Discard(), metrics.New()), srv.URL + "/"
}

func drupal(t *testing.T) *profile.Profile {
	t.Helper()
	prof, err := profile.Get("drupal")
	require.NoError(t, err)
	return prof
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "forbidden", want: MethodForbidden},
		{in: "NOT_FOUND", want: MethodNotFound},
		{in: " ok ", want: MethodOK},
		{in: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		folder  int
		want    Method
		wantErr bool
	}{
		{name: "forbidden", folder: http.StatusForbidden, want: MethodForbidden},
		{name: "not found", folder: http.StatusNotFound, want: MethodNotFound},
		{name: "ok", folder: http.StatusOK, want: MethodOK},
		{name: "server error", folder: http.StatusInternalServerError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, base := newEngine(t, fakeSite{routes: map[string]int{
				"sites/":              tt.folder,
				"core/misc/drupal.js": http.StatusOK,
			}})
			det, err := e.Detect(context.Background(), base, drupal(t), "", Options{})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoScanningMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, det.Method)
			assert.False(t, det.CatchAll)
		})
	}
}

func TestDetect_NoRegularFile(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{"sites/": http.StatusForbidden}})
	_, err := e.Detect(context.Background(), base, drupal(t), "", Options{})
	assert.ErrorIs(t, err, ErrNoScanningMethod)
}

func TestDetect_OverrideStillChecksCatchAll(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{fallback: http.StatusOK, page: "welcome"})
	det, err := e.Detect(context.Background(), base, drupal(t), MethodNotFound, Options{})
	require.NoError(t, err)
	assert.Equal(t, MethodNotFound, det.Method)
	assert.True(t, det.CatchAll)
	assert.Equal(t, BodyHash([]byte("welcome")), det.Baseline)
}

func TestPlugins_Forbidden(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{
		"sites/all/modules/views/":            http.StatusForbidden,
		"modules/contrib/views/":              http.StatusForbidden,
		"sites/all/modules/views/README.txt":  http.StatusOK,
		"sites/all/modules/views/LICENSE.txt": http.StatusOK,
		"modules/token/":                      http.StatusNotFound,
	}})
	det := Detection{Method: MethodForbidden}

	found, err := e.Plugins(context.Background(), base, drupal(t), []string{"views", "token", "ctools"}, det, Options{Threads: 4})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "views", found[0].Name)
	assert.Equal(t, base+"sites/all/modules/views/", found[0].URL, "first base path wins")

	var names []string
	for _, f := range found[0].Interesting {
		names = append(names, f.Name)
		assert.NotEmpty(t, f.Description)
	}
	assert.Equal(t, []string{"LICENSE.txt", "README.txt"}, names)
}

func TestPlugins_NotFoundProbesCommonFile(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{
		"modules/contrib/ctools/LICENSE.txt": http.StatusOK,
		"modules/contrib/views/":             http.StatusOK,
	}})
	det := Detection{Method: MethodNotFound}

	found, err := e.Plugins(context.Background(), base, drupal(t), []string{"views", "ctools"}, det, Options{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ctools", found[0].Name)
	assert.Equal(t, base+"modules/contrib/ctools/", found[0].URL)
}

func TestPlugins_CatchAllFiltered(t *testing.T) {
	t.Parallel()

	site := fakeSite{
		fallback: http.StatusOK,
		page:     "<html>home</html>",
		bodies:   map[string]string{"sites/all/modules/views/": "Index of /views"},
	}
	e, base := newEngine(t, site)

	det, err := e.Detect(context.Background(), base, drupal(t), MethodOK, Options{})
	require.NoError(t, err)
	require.True(t, det.CatchAll)

	found, err := e.Plugins(context.Background(), base, drupal(t), []string{"views", "ctools"}, det, Options{Verb: "head"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "views", found[0].Name)
	assert.Empty(t, found[0].Interesting, "catch-all module files are filtered too")
}

func TestPlugins_NumberLimit(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{
		"modules/a/": http.StatusOK,
		"modules/b/": http.StatusOK,
		"modules/c/": http.StatusOK,
	}})
	found, err := e.Plugins(context.Background(), base, drupal(t), []string{"a", "b", "c"}, Detection{Method: MethodOK}, Options{Number: 2})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Name)
	assert.Equal(t, "b", found[1].Name)
}

func TestThemes(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{
		"themes/bartik/":           http.StatusForbidden,
		"themes/bartik/README.txt": http.StatusOK,
		"sites/all/themes/zen/":    http.StatusForbidden,
	}})
	found, err := e.Themes(context.Background(), base, drupal(t), []string{"bartik", "zen", "olivero"}, Detection{Method: MethodForbidden}, Options{})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "bartik", found[0].Name)
	assert.Empty(t, found[0].Interesting, "themes carry no module files")
	assert.Equal(t, "zen", found[1].Name)
}

func TestInteresting(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{routes: map[string]int{
		"CHANGELOG.txt": http.StatusOK,
		"user/login":    http.StatusForbidden,
	}})
	found, err := e.Interesting(context.Background(), base, drupal(t), Detection{}, Options{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "CHANGELOG.txt", found[0].Name)
	assert.Equal(t, "Default changelog file", found[0].Description)
	assert.Equal(t, base+"CHANGELOG.txt", found[0].URL)
}

func TestBaseline(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{})
	det, err := e.Baseline(context.Background(), base, Options{})
	require.NoError(t, err)
	assert.False(t, det.CatchAll)
}

func TestPlugins_Cancelled(t *testing.T) {
	t.Parallel()

	e, base := newEngine(t, fakeSite{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Plugins(ctx, base, drupal(t), []string{"views"}, Detection{Method: MethodOK}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
