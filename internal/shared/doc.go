// Package shared holds helpers used across packages that belong to no
// single component.
//
// The testutil subpackage provides a capturing slog handler for asserting on
// structured log events, and file fixtures for tests that build input
// directories and compare committed bundles.
package shared
