package update

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/jsonutil"
	"github.com/cmsprobe/cmsprobe/pkg/runner"
	"github.com/cmsprobe/cmsprobe/pkg/version"
)

// Package lookup outcomes, also used as metric labels.
const (
	PackageOK        = "ok"
	PackageFailed    = "failed"
	PackageDuplicate = "duplicate"
)

type packagistMeta struct {
	Packages map[string]map[string]packagistVersion `json:"packages"`
}

// Extra is left loose: PHP serializes an empty extra as [].
type packagistVersion struct {
	Extra any `json:"extra"`
}

func (v packagistVersion) installerName() string {
	extra, ok := v.Extra.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := extra["installer-name"].(string)
	return name
}

// ResolveFolders maps composer package names to the folders they install
// into, in input order. A declared installer-name wins; otherwise the folder
// is the part after "/". A folder already taken by an earlier package is
// reported and dropped. Lookups that fail after backoff are returned joined
// in err; the folders resolved so far are still returned.
func (b *Builder) ResolveFolders(ctx context.Context, packages []string) ([]string, error) {
	if b.prober == nil {
		return nil, errors.New("update: no prober configured for packagist")
	}

	r := runner.NewRunner[string, string](defaults.PackagistWorkers)
	r.OnProgress = func(completed, _ int64, _ runner.Result[string, string]) {
		if completed%defaults.ProgressEvery == 0 {
			b.log.Infof("Done %d.", completed)
		}
	}

	// Retries honour ctx so an interrupt does not wait out a backoff.
	results, err := r.Run(ctx, packages, func(_ context.Context, pkg string) (string, error) {
		body, err := b.prober.GetWithBackoff(ctx, fmt.Sprintf(b.packagistURL, pkg))
		if err != nil {
			return "", fmt.Errorf("update: packagist %s: %w", pkg, err)
		}
		return folderFor(pkg, body), nil
	})
	if err != nil {
		return nil, err
	}

	byPackage := make(map[string]runner.Result[string, string], len(results))
	for _, res := range results {
		byPackage[res.Input] = res
	}

	var errs []error
	var folders []string
	owner := make(map[string]string)
	for _, pkg := range packages {
		res := byPackage[pkg]
		if res.Error != nil {
			b.metrics.ObservePackage(PackageFailed)
			errs = append(errs, res.Error)
			continue
		}
		if prev, dup := owner[res.Data]; dup {
			b.metrics.ObservePackage(PackageDuplicate)
			b.notice("Folder %s is duplicated (current %s, previous %s)", res.Data, pkg, prev)
			continue
		}
		b.metrics.ObservePackage(PackageOK)
		owner[res.Data] = pkg
		folders = append(folders, res.Data)
	}
	return folders, errors.Join(errs...)
}

// folderFor picks the installer-name of the newest version declaring one,
// falling back to the package's short name.
func folderFor(pkg string, body []byte) string {
	fallback := pkg
	if _, after, ok := strings.Cut(pkg, "/"); ok {
		fallback = after
	}

	var meta packagistMeta
	if err := jsonutil.Unmarshal(body, &meta); err != nil {
		return fallback
	}
	versions := meta.Packages[pkg]

	best := ""
	name := ""
	for v, pv := range versions {
		n := pv.installerName()
		if n == "" {
			continue
		}
		if best == "" || version.Greater(v, best) {
			best, name = v, n
		}
	}
	if name == "" {
		return fallback
	}
	return name
}
