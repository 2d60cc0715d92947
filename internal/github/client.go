package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// defaultBaseURL is the GitHub REST API endpoint.
	defaultBaseURL = "https://api.github.com"

	// DefaultTimeout bounds a single API or download request. This is an
	// implementation choice, not a reproduced contract.
	DefaultTimeout = 30 * time.Second

	// userAgent identifies ocpm to the API.
	userAgent = "ocpm/1.0"
)

// errUnexpectedStatus is returned on non-2xx API and download responses.
var errUnexpectedStatus = errors.New("unexpected http status")

// Release is one published release as returned by the list-releases API,
// newest first.
type Release struct {
	// TagName is the release tag, e.g. "v1.6.1".
	TagName string `json:"tag_name"`
	// Prerelease marks releases excluded by default.
	Prerelease bool `json:"prerelease"`
	// PublishedAt is the upstream publication timestamp.
	PublishedAt string `json:"published_at"`
	// Assets are the downloadable artifacts attached to the release.
	Assets []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	// Name is the artifact filename.
	Name string `json:"name"`
	// Size is the artifact size in bytes.
	Size int64 `json:"size"`
	// BrowserDownloadURL is where the artifact is fetched from.
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Client talks to the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a GitHub client. The token may be empty; it is never read
// from the environment here, callers pass it in explicitly.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListReleases returns the releases of "owner/repo" in API order, newest first.
func (c *Client) ListReleases(ctx context.Context, ownerRepo string) ([]Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, ownerRepo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", endpoint, response.Status, errUnexpectedStatus)
	}

	var releases []Release
	if err = json.NewDecoder(response.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}

	return releases, nil
}

// Download fetches url into the file at dest. A partial file is removed on
// failure so a later existence check cannot mistake it for a finished
// download.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", userAgent)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", url, response.Status, errUnexpectedStatus)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, response.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)

		return fmt.Errorf("download %s: %w", url, err)
	}

	return out.Close()
}
