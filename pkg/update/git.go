package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/duration"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
)

// TagLister lists the tags of a remote repository.
type TagLister interface {
	ListTags(ctx context.Context, url string) ([]string, error)
}

// Workspace holds the scratch checkouts of a CMS's repositories.
type Workspace interface {
	// Prepare clones missing repositories and fetches new tags into
	// existing ones.
	Prepare(ctx context.Context, cms string, repos []profile.Repo) error

	// Checkout moves repo's worktree to tag.
	Checkout(ctx context.Context, cms string, repo profile.Repo, tag string) error

	// Dir is the directory canonical file paths are relative to.
	Dir(cms string) string
}

// RemoteTags lists tags with an in-memory remote, without cloning.
type RemoteTags struct{}

// ListTags returns the short names of every tag on url, sorted.
func (RemoteTags) ListTags(ctx context.Context, url string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, duration.ContextShort)
	defer cancel()

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("update: list tags of %s: %w", url, err)
	}

	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// GitWorkspace keeps one clone per repository under <root>/<cms>/<dir>.
type GitWorkspace struct {
	root string
	log  logrus.FieldLogger
}

// NewGitWorkspace creates a workspace rooted at root.
func NewGitWorkspace(root string, log logrus.FieldLogger) *GitWorkspace {
	return &GitWorkspace{root: root, log: log}
}

// Dir implements Workspace.
func (w *GitWorkspace) Dir(cms string) string {
	return filepath.Join(w.root, cms)
}

func (w *GitWorkspace) repoDir(cms string, repo profile.Repo) string {
	return filepath.Join(w.Dir(cms), filepath.FromSlash(repo.Dir))
}

// Prepare implements Workspace.
func (w *GitWorkspace) Prepare(ctx context.Context, cms string, repos []profile.Repo) error {
	ctx, cancel := context.WithTimeout(ctx, duration.ContextLong)
	defer cancel()

	for _, repo := range repos {
		dir := w.repoDir(cms, repo)
		log := w.log.WithFields(logrus.Fields{logger.FieldCMS: cms, logger.FieldURL: repo.URL})

		r, err := git.PlainOpen(dir)
		switch {
		case errors.Is(err, git.ErrRepositoryNotExists):
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("update: create %s: %w", dir, err)
			}
			log.Infof("cloning %s", repo.Name)
			_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
				URL:        repo.URL,
				Tags:       git.AllTags,
				NoCheckout: true,
			})
			if err != nil {
				return fmt.Errorf("update: clone %s: %w", repo.URL, err)
			}
		case err != nil:
			return fmt.Errorf("update: open %s: %w", dir, err)
		default:
			log.Debugf("fetching %s", repo.Name)
			err = r.FetchContext(ctx, &git.FetchOptions{Tags: git.AllTags, Force: true})
			if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
				return fmt.Errorf("update: fetch %s: %w", repo.URL, err)
			}
		}
	}
	return nil
}

// Checkout implements Workspace.
func (w *GitWorkspace) Checkout(_ context.Context, cms string, repo profile.Repo, tag string) error {
	dir := w.repoDir(cms, repo)
	r, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrCheckout, dir, err)
	}
	hash, err := r.ResolveRevision(plumbing.Revision(plumbing.NewTagReferenceName(tag)))
	if err != nil {
		return fmt.Errorf("%w: %s has no tag %s: %v", ErrCheckout, repo.Name, tag, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("%w: worktree %s: %v", ErrCheckout, dir, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("%w: %s at %s: %v", ErrCheckout, repo.Name, tag, err)
	}
	return nil
}
