// Package buildinfo exposes build metadata injected at link time.
package buildinfo

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = "none"
	// BuildDate records when the binary was built.
	BuildDate = "unknown"
)
