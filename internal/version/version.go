// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/alex-user-go/skisearch/internal/version.Version=1.0.0 \
//	                   -X github.com/alex-user-go/skisearch/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the semantic version.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"
)

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ")"
}
