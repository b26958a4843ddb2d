package profile

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"sync"

	"golang.org/x/text/cases"
)

//go:embed profiles/*.yaml
var embedded embed.FS

var (
	loadOnce sync.Once
	loaded   []*Profile
	loadErr  error
)

// Casers are stateful, so each lookup gets its own.
func folded(s string) string {
	return cases.Fold().String(s)
}

func load() ([]*Profile, error) {
	loadOnce.Do(func() {
		entries, err := embedded.ReadDir("profiles")
		if err != nil {
			loadErr = err
			return
		}
		for _, e := range entries {
			data, err := embedded.ReadFile(path.Join("profiles", e.Name()))
			if err != nil {
				loadErr = err
				return
			}
			p, err := Parse(data)
			if err != nil {
				loadErr = fmt.Errorf("%s: %w", e.Name(), err)
				return
			}
			loaded = append(loaded, p)
		}
		sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	})
	return loaded, loadErr
}

// All returns every shipped profile sorted by name. The embedded files are
// validated at build time by the tests, so a load failure panics.
func All() []*Profile {
	ps, err := load()
	if err != nil {
		panic(err)
	}
	return ps
}

// Names returns the canonical profile names.
func Names() []string {
	ps := All()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// Get looks a profile up by name or alias, ignoring case.
func Get(name string) (*Profile, error) {
	want := folded(name)
	for _, p := range All() {
		if folded(p.Name) == want {
			return p, nil
		}
		for _, a := range p.Aliases {
			if folded(a) == want {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCMS, name)
}

// IsName reports whether s names a profile or alias.
func IsName(s string) bool {
	_, err := Get(s)
	return err == nil
}
