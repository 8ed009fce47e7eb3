package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// SelectorLatest resolves to the newest stable release.
const SelectorLatest = "latest"

// digestPrefix is the algorithm marker GitHub puts in front of asset digests.
const digestPrefix = "sha256:"

// Release is the subset of GitHub release metadata the installer consumes.
type Release struct {
	// TagName is the git tag of the release.
	TagName string `json:"tag_name"`
	// Prerelease marks the release as a prerelease.
	Prerelease bool `json:"prerelease"`
	// Draft marks an unpublished release; drafts are never installed.
	Draft bool `json:"draft"`
	// PublishedAt is when the release went live.
	PublishedAt time.Time `json:"published_at"`
	// Assets lists the downloadable files attached to the release.
	Assets []ReleaseAsset `json:"assets"`
}

// ReleaseAsset describes one downloadable file of a release.
type ReleaseAsset struct {
	// Name is the asset filename.
	Name string `json:"name"`
	// BrowserDownloadURL is the public download location.
	BrowserDownloadURL string `json:"browser_download_url"`
	// ContentType is the asset MIME type.
	ContentType string `json:"content_type"`
	// Size is the asset size in bytes.
	Size int64 `json:"size"`
	// Digest is the optional content digest ("sha256:<hex>").
	Digest string `json:"digest"`
}

// ResolvedVersion is the concrete version an install run targets.
type ResolvedVersion struct {
	// Tag is the release tag, never empty.
	Tag string
	// Prerelease reports whether the resolved release is a prerelease.
	Prerelease bool
}

// Visibility is the advisory repository classification used in error wording.
type Visibility string

// Repository visibility classifications.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityUnknown Visibility = "unknown"
)

// AssetDigest returns the digest for the named asset with the algorithm
// prefix stripped, or an empty string when the asset or digest is absent.
func (r *Release) AssetDigest(name string) string {
	for _, asset := range r.Assets {
		if asset.Name != name {
			continue
		}

		return strings.TrimPrefix(asset.Digest, digestPrefix)
	}

	return ""
}

// ResolveVersion turns a version selector into a concrete release tag.
// Explicit tags are returned unchanged without touching the network, which
// deliberately allows installing versions the host has not indexed yet.
// "latest" uses the latest-release endpoint; with prereleases included it
// takes the first non-draft entry of the newest-first listing instead.
func (c *Client) ResolveVersion(ctx context.Context, repo, selector string, includePrerelease bool) (ResolvedVersion, error) {
	selector = strings.TrimSpace(selector)
	if selector != "" && !strings.EqualFold(selector, SelectorLatest) {
		return ResolvedVersion{Tag: selector}, nil
	}

	// Advisory only: the classification shapes failure messages and never
	// blocks the resolution call itself.
	visibility := c.Classify(ctx, repo)
	logger.DebugKV(ctx, "Classified repository", "repository", repo, "visibility", visibility)

	resolved, err := c.resolveLatest(ctx, repo, includePrerelease)
	if err != nil {
		return ResolvedVersion{}, resolutionError(repo, visibility, err)
	}

	return resolved, nil
}

// resolveLatest picks the newest release tag, optionally including prereleases.
func (c *Client) resolveLatest(ctx context.Context, repo string, includePrerelease bool) (ResolvedVersion, error) {
	if !includePrerelease {
		release, err := c.LatestRelease(ctx, repo)
		if err != nil {
			return ResolvedVersion{}, err
		}

		return resolvedFrom(repo, release)
	}

	releases, err := c.ListReleases(ctx, repo)
	if err != nil {
		return ResolvedVersion{}, err
	}

	// The host orders the listing newest first; take the first published
	// entry regardless of its prerelease flag.
	for _, release := range releases {
		if release.Draft {
			continue
		}

		return resolvedFrom(repo, &release)
	}

	return ResolvedVersion{}, fmt.Errorf("%s: %w", repo, errNoReleases)
}

// resolvedFrom converts release metadata into a resolved version. A host can
// answer 200 with an empty object; metadata without a tag name is rejected
// here as a resolution failure.
func resolvedFrom(repo string, release *Release) (ResolvedVersion, error) {
	if release.TagName == "" {
		return ResolvedVersion{}, fmt.Errorf("%s: %w", repo, errEmptyTag)
	}

	return ResolvedVersion{Tag: release.TagName, Prerelease: release.Prerelease}, nil
}

// LatestRelease fetches the repository's latest stable release.
func (c *Client) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	var release Release
	if err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBaseURL, repo), &release); err != nil {
		return nil, fmt.Errorf("latest release: %w", err)
	}

	return &release, nil
}

// ListReleases fetches the release listing, newest first.
func (c *Client) ListReleases(ctx context.Context, repo string) ([]Release, error) {
	var releases []Release
	if err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases", c.apiBaseURL, repo), &releases); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	return releases, nil
}

// ReleaseByTag fetches a specific release's metadata, including asset digests.
func (c *Client) ReleaseByTag(ctx context.Context, repo, tag string) (*Release, error) {
	var release Release
	if err := c.getJSON(ctx, fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.apiBaseURL, repo, tag), &release); err != nil {
		return nil, fmt.Errorf("release %s: %w", tag, err)
	}

	return &release, nil
}

// Classify probes repository visibility with an anonymous metadata read,
// upgrading to an authenticated one when the anonymous read fails and a
// credential is available. The result is advisory and never an error.
func (c *Client) Classify(ctx context.Context, repo string) Visibility {
	metadataURL := fmt.Sprintf("%s/repos/%s", c.apiBaseURL, repo)

	if c.probe(ctx, metadataURL, "") {
		return VisibilityPublic
	}

	if c.token != "" && c.probe(ctx, metadataURL, c.token) {
		return VisibilityPrivate
	}

	return VisibilityUnknown
}

// probe reports whether a metadata GET succeeds.
func (c *Client) probe(ctx context.Context, rawURL, token string) bool {
	resp, err := c.get(ctx, c.api, rawURL, token)
	if err != nil {
		return false
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	return resp.StatusCode == http.StatusOK
}

// resolutionError wraps a resolution failure with visibility-aware guidance.
// There is no placeholder fallback version: resolution failures are fatal.
func resolutionError(repo string, visibility Visibility, err error) error {
	switch visibility {
	case VisibilityPrivate:
		return fmt.Errorf(
			"resolve latest release of %s: %w; the repository is private, ensure your token grants access, or pass an explicit version tag",
			repo, err)
	case VisibilityPublic:
		return fmt.Errorf(
			"resolve latest release of %s: %w; pass an explicit version tag to skip resolution",
			repo, err)
	default:
		return fmt.Errorf(
			"resolve latest release of %s: %w; the repository may be private or unreachable, set GITHUB_TOKEN or pass an explicit version tag",
			repo, err)
	}
}

// decodeJSON decodes a JSON body into out.
func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
