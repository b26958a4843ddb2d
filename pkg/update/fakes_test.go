package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
)

type fakeTags struct {
	tags []string
	err  error
	urls []string
}

func (f *fakeTags) ListTags(_ context.Context, url string) ([]string, error) {
	f.urls = append(f.urls, url)
	return f.tags, f.err
}

// fakeWorkspace materializes canonical files for a tag. content maps
// repo name -> tag -> canonical path -> body; a repo only writes paths under
// its Dir.
type fakeWorkspace struct {
	root    string
	content map[string]map[string]map[string]string

	mu        sync.Mutex
	prepared  []string
	checkouts []string
}

func (w *fakeWorkspace) Prepare(_ context.Context, cms string, repos []profile.Repo) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range repos {
		w.prepared = append(w.prepared, cms+"/"+r.Name)
	}
	return nil
}

func (w *fakeWorkspace) Checkout(_ context.Context, cms string, repo profile.Repo, tag string) error {
	w.mu.Lock()
	w.checkouts = append(w.checkouts, repo.Name+"@"+tag)
	w.mu.Unlock()

	files, ok := w.content[repo.Name][tag]
	if !ok {
		return fmt.Errorf("%w: no tag %s", ErrCheckout, tag)
	}

	dir := filepath.Join(w.Dir(cms), repo.Dir)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	for path, body := range files {
		if repo.Dir != "" && !strings.HasPrefix(path, repo.Dir+"/") {
			continue
		}
		full := filepath.Join(w.Dir(cms), filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (w *fakeWorkspace) Dir(cms string) string {
	return filepath.Join(w.root, cms)
}
