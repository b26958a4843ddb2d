// Package defaults holds the canonical runtime defaults.
//
// Usage:
//
//	opts.MaxParallel = defaults.Threads
//	req.Header.Set("User-Agent", defaults.UserAgent)
package defaults

import "fmt"

// Version is the current cmsprobe version
const Version = "1.0.0"

// ToolName is used for metric prefixes, tracer names and the config file
const ToolName = "cmsprobe"

// UserAgent is sent with every probe unless overridden
var UserAgent = fmt.Sprintf("Mozilla/5.0 (compatible; %s/%s)", ToolName, Version)

// ============================================================================
// CONCURRENCY
// ============================================================================

const (
	// Threads is the default probe worker pool size
	Threads = 10

	// TargetThreads is how many targets from a URL file are scanned at once
	TargetThreads = 4

	// PackagistWorkers resolves composer package folders in parallel
	PackagistWorkers = 12

	// BackoffAttempts bounds package-metadata retries (2s..120s doubling)
	BackoffAttempts = 10
)

// ============================================================================
// FILES
// ============================================================================

const (
	// DataDir holds <cms>/versions.json and wordlists
	DataDir = "data"

	// WorkspaceDir is the scratch checkout area for database builds
	WorkspaceDir = ".update-workspace"

	// VersionsFile is the per-CMS fingerprint database file name
	VersionsFile = "versions.json"

	// LegacyVersionsFile is the droopescan XML database file name
	LegacyVersionsFile = "versions.xml"

	// PluginsFile and ThemesFile are the per-CMS wordlists
	PluginsFile = "plugins.txt"
	ThemesFile  = "themes.txt"
)

// ============================================================================
// LISTING PAGINATION
// ============================================================================

const (
	// ProgressEvery is how often long-running loops log progress
	ProgressEvery = 25
)
