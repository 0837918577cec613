package version

import "fmt"

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version information
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String formats the build information for --version output.
func String() string {
	return fmt.Sprintf("litelens %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}

// UserAgent is sent by the backend HTTP clients.
func UserAgent() string {
	return "litelens/" + Version
}
