// Package version holds build-time version metadata.
package version

// Version is the semantic version of the quantd build. Overridden at build
// time via -ldflags "-X github.com/quantleap/quantd/internal/version.Version=...".
var Version = "0.1.0-dev"
