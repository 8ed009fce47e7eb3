package version

import "fmt"

var (
	// Version is the semantic version of this build, overridden via ldflags
	// on release builds.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string, used in User-Agent headers
// and log fields.
func Short() string {
	return Version
}

// Full renders the complete version line. Binaries installed by this tool
// are expected to answer their `version` subcommand in this same format,
// which is how an existing install is recognized.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}
