// Package github is a minimal client for GitHub-shaped release hosts.
//
// It resolves version selectors against the releases API, reads per-release
// asset metadata (including content digests), and downloads assets. Every
// request runs through one shared fallback policy: a bearer token is
// attached only for the release host, and any failure of the authenticated
// attempt triggers exactly one anonymous retry. API and download roots are
// injectable for tests and GitHub Enterprise.
package github
