package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ambarlabs/ambar-install/internal/logger"
	"github.com/ambarlabs/ambar-install/internal/version"
)

const (
	// DefaultAPIBaseURL is the GitHub REST API endpoint.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultDownloadBaseURL is the host serving release asset downloads.
	DefaultDownloadBaseURL = "https://github.com"

	// DefaultMetadataTimeout bounds metadata requests so an unreachable host
	// fails fast instead of hanging.
	DefaultMetadataTimeout = 10 * time.Second

	// acceptHeader is the media type GitHub documents for REST calls.
	acceptHeader = "application/vnd.github+json"

	// apiVersionHeader pins the REST API revision.
	apiVersionHeader = "2022-11-28"
)

var (
	// errBadHTTPStatus is returned for any non-OK response.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errNoReleases is returned when a release listing comes back empty.
	errNoReleases = errors.New("no releases published")
	// errEmptyTag is returned when release metadata lacks a tag name.
	errEmptyTag = errors.New("release metadata lacks a tag name")
)

// Client talks to a GitHub-shaped release host. Metadata requests share a
// short-timeout HTTP client; asset downloads use a client bounded only by
// context cancellation because artifact sizes are unknown in advance.
type Client struct {
	// apiBaseURL is the REST API root without a trailing slash.
	apiBaseURL string
	// downloadBaseURL is the asset download root without a trailing slash.
	downloadBaseURL string
	// token is the optional bearer credential for the release host.
	token string
	// userAgent identifies the installer in requests.
	userAgent string

	// api performs metadata requests.
	api *http.Client
	// download performs asset and manifest requests.
	download *http.Client
}

// Option configures client behaviour.
type Option func(*Client)

// WithToken sets the bearer token attached to release-host requests.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithAPIBaseURL overrides the REST API root (tests, GitHub Enterprise).
func WithAPIBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithDownloadBaseURL overrides the asset download root.
func WithDownloadBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.downloadBaseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithMetadataTimeout sets the ceiling for metadata requests.
func WithMetadataTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.api.Timeout = timeout
		}
	}
}

// NewClient builds a release-host client with default endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		apiBaseURL:      DefaultAPIBaseURL,
		downloadBaseURL: DefaultDownloadBaseURL,
		userAgent:       "ambar-install/" + version.Short(),
		api:             &http.Client{Timeout: DefaultMetadataTimeout},
		download:        &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DownloadURL composes the canonical asset URL for a tagged release.
func (c *Client) DownloadURL(repo, tag, assetName string) string {
	return fmt.Sprintf("%s/%s/releases/download/%s/%s", c.downloadBaseURL, repo, tag, assetName)
}

// Download fetches binary content (archives, checksum manifests) from the
// release host, authenticated first when possible. The caller owns the body.
func (c *Client) Download(ctx context.Context, rawURL string) (*http.Response, error) {
	return c.getWithAuthFallback(ctx, c.download, rawURL)
}

// getJSON performs a metadata GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := c.getWithAuthFallback(ctx, c.api, rawURL)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	return decodeJSON(resp.Body, out)
}

// getWithAuthFallback is the single auth fallback policy shared by version
// resolution, checksum metadata, manifest fetches, and archive downloads. When a token exists and the URL belongs to the release host, the
// request carries it; any failure triggers exactly one anonymous attempt.
// Hosts other than the release host are always queried anonymously.
func (c *Client) getWithAuthFallback(ctx context.Context, httpClient *http.Client, rawURL string) (*http.Response, error) {
	if token := c.tokenFor(rawURL); token != "" {
		resp, err := c.get(ctx, httpClient, rawURL, token)
		if err == nil && resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		if resp != nil {
			_ = resp.Body.Close()
		}

		logger.DebugKV(ctx, "Authenticated request failed, retrying anonymously", "url", rawURL)
	}

	resp, err := c.get(ctx, httpClient, rawURL, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s: %s: %w", rawURL, resp.Status, errBadHTTPStatus)
	}

	return resp, nil
}

// get issues a single GET with release-host headers attached.
func (c *Client) get(ctx context.Context, httpClient *http.Client, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	req.Header.Set("User-Agent", c.userAgent)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return httpClient.Do(req)
}

// tokenFor returns the client token only for URLs on the release host.
// Other hosts (mirrors configured via a base-URL override) never receive
// the credential.
func (c *Client) tokenFor(rawURL string) string {
	if c.token == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if parsed.Host == hostOf(c.apiBaseURL) || parsed.Host == hostOf(c.downloadBaseURL) {
		return c.token
	}

	return ""
}

// hostOf extracts the host component of a base URL, empty on parse failure.
func hostOf(base string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return ""
	}

	return parsed.Host
}
