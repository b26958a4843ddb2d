package scan

import (
	"time"

	"github.com/cmsprobe/cmsprobe/pkg/enumerate"
	"github.com/cmsprobe/cmsprobe/pkg/resolver"
)

// Result is the outcome of scanning one target.
type Result struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Host      string    `json:"host,omitempty"`
	CMS       string    `json:"cms,omitempty"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMS int64     `json:"elapsed_ms"`

	Method   enumerate.Method `json:"method,omitempty"`
	CatchAll bool             `json:"catch_all,omitempty"`

	Version     *resolver.Result    `json:"version,omitempty"`
	Plugins     []enumerate.Finding `json:"plugins,omitempty"`
	Themes      []enumerate.Finding `json:"themes,omitempty"`
	Interesting []enumerate.Finding `json:"interesting_urls,omitempty"`

	// Skipped lists enumerations that could not run, with the reason.
	Skipped []string `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Elapsed is the scan duration.
func (r *Result) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMS) * time.Millisecond
}

// AnythingFound reports whether the scan determined a version or found any
// plugin, theme or interesting path.
func (r *Result) AnythingFound() bool {
	if r == nil {
		return false
	}
	if r.Version != nil && !r.Version.IsEmpty {
		return true
	}
	return len(r.Plugins) > 0 || len(r.Themes) > 0 || len(r.Interesting) > 0
}
