package scan

import (
	"fmt"
	"strings"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
)

// Selector picks the enumerations a scan runs. The zero value runs all.
type Selector struct {
	Version     bool
	Plugins     bool
	Themes      bool
	Interesting bool

	// explicit is set when the user named enumerations one by one; an
	// unsupported one is then an error instead of being skipped.
	explicit bool
}

// All selects every enumeration the profile supports.
func All() Selector {
	return Selector{Version: true, Plugins: true, Themes: true, Interesting: true}
}

// ParseSelector parses the -e flag: "a" (or empty) for all, otherwise any
// of v, p, t, i.
func ParseSelector(s string) (Selector, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "a" {
		return All(), nil
	}
	sel := Selector{explicit: true}
	for _, c := range s {
		switch c {
		case 'v':
			sel.Version = true
		case 'p':
			sel.Plugins = true
		case 't':
			sel.Themes = true
		case 'i':
			sel.Interesting = true
		default:
			return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, string(c))
		}
	}
	return sel, nil
}

func (s Selector) empty() bool {
	return !s.Version && !s.Plugins && !s.Themes && !s.Interesting
}

// For narrows s to what prof can do.
func (s Selector) For(prof *profile.Profile) (Selector, error) {
	if s.empty() {
		s = All()
	}
	caps := prof.Capabilities
	checks := []struct {
		want *bool
		has  bool
		name string
	}{
		{&s.Version, caps.Version, "version"},
		{&s.Plugins, caps.Plugins, "plugins"},
		{&s.Themes, caps.Themes, "themes"},
		{&s.Interesting, caps.Interesting, "interesting"},
	}
	for _, c := range checks {
		if *c.want && !c.has {
			if s.explicit {
				return Selector{}, fmt.Errorf("%w: %s %s", ErrUnsupported, prof.Name, c.name)
			}
			*c.want = false
		}
	}
	return s, nil
}
