// Package credentials resolves an optional bearer token for the release
// host, checking GITHUB_TOKEN and GH_TOKEN before asking the gh CLI.
//
// Resolution is strictly best-effort: a missing helper, a stale login, or a
// disabled resolver all yield an absent token rather than an error, so
// anonymous installs keep working on machines without credentials.
package credentials
