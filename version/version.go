// Package version holds the Drift build version.
package version

// Version is overridden at build time via -ldflags.
var Version = "0.0.1-dev"
