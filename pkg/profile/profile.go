// Package profile holds the per-CMS descriptors: where plugins and themes
// live, which files fingerprint a release, where new releases come from and
// how the HTML of a page can betray its version.
package profile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cmsprobe/cmsprobe/pkg/regexcache"
)

// Pagination styles for listing pages.
const (
	PaginationPage = "page" // URL carries the page number
	PaginationSkip = "skip" // URL carries page*per_page
)

// Path is a URL path relative to the site root plus a human description.
type Path struct {
	Path        string `yaml:"path"`
	Description string `yaml:"description"`
}

// Capabilities says which enumerations make sense for a CMS.
type Capabilities struct {
	Version     bool `yaml:"version"`
	Plugins     bool `yaml:"plugins"`
	Themes      bool `yaml:"themes"`
	Interesting bool `yaml:"interesting"`
}

// Repo is one upstream git repository. Dir is its checkout location
// relative to the CMS workspace; empty means the workspace root.
type Repo struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Dir  string `yaml:"dir"`
}

// Update describes where release tags come from. The first repository is
// the tag source; the rest are companions that must carry the same tag.
type Update struct {
	Majors    []string `yaml:"majors"`
	TagPrefix string   `yaml:"tag_prefix"`
	Repos     []Repo   `yaml:"repos"`
}

// ListingSource is one paginated listing. URL has a single %d verb.
// Attr "href" takes the last path segment of the link; empty takes its text.
type ListingSource struct {
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// Listing describes how plugin and theme wordlists are refreshed.
type Listing struct {
	PerPage    int           `yaml:"per_page"`
	Pagination string        `yaml:"pagination"`
	FirstPage  int           `yaml:"first_page"` // page pagination only
	Max        int           `yaml:"max"`        // 0 = until an empty page
	Packagist  bool          `yaml:"packagist"`
	Plugins    ListingSource `yaml:"plugins"`
	Themes     ListingSource `yaml:"themes"`
}

// QueryParamHint finds the version in a cache-busting query parameter of
// asset URLs whose path contains PathContains.
type QueryParamHint struct {
	Param        string `yaml:"param"`
	PathContains string `yaml:"path_contains"`
	Pattern      string `yaml:"pattern"`
}

// Hints configures HTML version extraction.
type Hints struct {
	QueryParam *QueryParamHint `yaml:"query_param"`

	// MetaPattern is matched against <meta name="generator"> content. Its
	// first group is the version.
	MetaPattern string `yaml:"meta_pattern"`

	// MetaNarrows lets the generator hint narrow several fingerprint
	// matches. Set it only when the generator tag carries minor versions.
	MetaNarrows bool `yaml:"meta_narrows"`
}

// Profile is an immutable CMS descriptor.
type Profile struct {
	Name                  string       `yaml:"name"`
	Aliases               []string     `yaml:"aliases"`
	PluginsBaseURLs       []string     `yaml:"plugins_base_urls"`
	ThemesBaseURLs        []string     `yaml:"themes_base_urls"`
	ForbiddenURL          string       `yaml:"forbidden_url"`
	RegularFiles          []string     `yaml:"regular_files"`
	ModuleCommonFile      string       `yaml:"module_common_file"`
	InterestingURLs       []Path       `yaml:"interesting_urls"`
	InterestingModuleURLs []Path       `yaml:"interesting_module_urls"`
	Capabilities          Capabilities `yaml:"capabilities"`
	Update                Update       `yaml:"update"`
	Listing               *Listing     `yaml:"listing"`
	Hints                 Hints        `yaml:"hints"`
}

// Parse decodes and validates one YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the fields every consumer relies on.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	for _, tmpl := range append(append([]string{}, p.PluginsBaseURLs...), p.ThemesBaseURLs...) {
		if strings.Count(tmpl, "%s") != 1 {
			return fmt.Errorf("%w: %s: base url %q needs exactly one %%s", ErrInvalidProfile, p.Name, tmpl)
		}
	}
	if p.Capabilities.Plugins && len(p.PluginsBaseURLs) == 0 {
		return fmt.Errorf("%w: %s: plugins enabled without base urls", ErrInvalidProfile, p.Name)
	}
	if p.Capabilities.Themes && len(p.ThemesBaseURLs) == 0 {
		return fmt.Errorf("%w: %s: themes enabled without base urls", ErrInvalidProfile, p.Name)
	}
	if p.Capabilities.Version && len(p.Update.Repos) == 0 {
		return fmt.Errorf("%w: %s: version enabled without update repos", ErrInvalidProfile, p.Name)
	}
	if l := p.Listing; l != nil {
		if l.Pagination != PaginationPage && l.Pagination != PaginationSkip {
			return fmt.Errorf("%w: %s: pagination %q", ErrInvalidProfile, p.Name, l.Pagination)
		}
		if l.PerPage <= 0 {
			return fmt.Errorf("%w: %s: per_page must be positive", ErrInvalidProfile, p.Name)
		}
	}

	patterns := []string{p.Hints.MetaPattern}
	if q := p.Hints.QueryParam; q != nil {
		if q.Param == "" {
			return fmt.Errorf("%w: %s: query_param hint without param", ErrInvalidProfile, p.Name)
		}
		patterns = append(patterns, q.Pattern)
	}
	if errs := regexcache.Precompile(patterns...); len(errs) > 0 {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProfile, p.Name, errs[0])
	}
	return nil
}

// PluginURLs expands every plugin base url for name against base, which
// must end in "/".
func (p *Profile) PluginURLs(base, name string) []string {
	return expand(base, p.PluginsBaseURLs, name)
}

// ThemeURLs expands every theme base url for name against base.
func (p *Profile) ThemeURLs(base, name string) []string {
	return expand(base, p.ThemesBaseURLs, name)
}

func expand(base string, templates []string, name string) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, base+fmt.Sprintf(t, name))
	}
	return out
}

// HasHints reports whether any HTML extraction is configured.
func (p *Profile) HasHints() bool {
	return p.Hints.QueryParam != nil || p.Hints.MetaPattern != ""
}

// CanUpdateWordlists reports whether plugin and theme lists can be
// refreshed from upstream.
func (p *Profile) CanUpdateWordlists() bool {
	return p.Listing != nil
}

// TagToVersion strips the tag prefix. ok is false for tags that do not
// carry it.
func (p *Profile) TagToVersion(tag string) (string, bool) {
	if p.Update.TagPrefix == "" {
		return tag, true
	}
	v, found := strings.CutPrefix(tag, p.Update.TagPrefix)
	return v, found
}

// VersionToTag re-applies the tag prefix for checkout.
func (p *Profile) VersionToTag(version string) string {
	return p.Update.TagPrefix + version
}
