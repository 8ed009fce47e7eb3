// Package platform maps the running host to the canonical {os, arch} pair
// used to build artifact names.
//
// Detect validates runtime.GOOS/GOARCH against the published artifact matrix,
// Normalize additionally accepts uname-style aliases (x86_64, aarch64, i686),
// and DescribeHost collects best-effort distribution details for diagnostics.
package platform
