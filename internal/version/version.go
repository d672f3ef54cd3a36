package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies raterelay in outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("raterelay/%s (+%s)", Version, Commit)
}

// String renders the full build description printed by the version command.
func String() string {
	return fmt.Sprintf("raterelay %s (commit %s, built %s)", Version, Commit, BuildDate)
}
