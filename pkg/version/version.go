// Package version carries build metadata stamped in with -ldflags, for example
//
//	go build -ldflags "-X boxonomics/pkg/version.Version=v0.3.0 -X boxonomics/pkg/version.Commit=$(git rev-parse --short HEAD)"
package version

//nolint:gochecknoglobals // ldflags targets
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line form printed by `boxonomics version`.
func String() string {
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
