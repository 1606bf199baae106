package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the ingester
	Version = "0.3.0"

	// BundleFormatVersion identifies the on-disk bundle layout
	BundleFormatVersion = "v1"

	// FeedSchemaVersion is the schema-mapping version this build reads
	FeedSchemaVersion = 1
)

var (
	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version      string `json:"version"`
	BundleFormat string `json:"bundle_format"`
	FeedSchema   int    `json:"feed_schema"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		BundleFormat: BundleFormatVersion,
		FeedSchema:   FeedSchemaVersion,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	return fmt.Sprintf("mdbundle ingest v%s", Version)
}

// GetFullVersionString returns a detailed version string
func GetFullVersionString() string {
	info := GetVersionInfo()
	return fmt.Sprintf(
		"%s (bundle format %s, built: %s, commit: %s, go: %s, os: %s/%s)",
		GetVersionString(),
		info.BundleFormat,
		info.BuildTime,
		info.GitCommit,
		info.GoVersion,
		info.OS,
		info.Architecture,
	)
}
