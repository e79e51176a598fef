// Package buildinfo exposes version information stamped at build time via
// -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/warp/revenue-engine/internal/buildinfo.Version=v1.2.0"
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
