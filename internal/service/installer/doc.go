// Package installer fetches and installs release binaries.
//
// It resolves a version selector against the release host, derives the
// platform-specific artifact names, downloads the archive, verifies its
// SHA-256 digest against the published checksum, extracts the expected
// binary into a scratch directory, and places it atomically in the install
// directory. Runs short-circuit as a no-op when the requested version is
// already installed, and a base URL override redirects fetching to a mirror
// or a local file:// directory for offline installs.
package installer
