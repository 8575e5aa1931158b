// Package version provides information about the build version of the workers.
package version

// BuildInfo holds version information about the worker build.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'gitpulse/internal/core/version.version=v0.1.0'
	// -X 'gitpulse/internal/core/version.commit=abcd' -X 'gitpulse/internal/core/version.date=2026-08-29'"
	return BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
