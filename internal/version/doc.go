// Package version exposes build metadata for the installer itself.
//
// Version, Commit, and BuildTime are injected through Go ldflags on release
// builds and fall back to development defaults. Full renders the canonical
// version line shared by all binaries in the ambar family.
package version
