package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hykilpikonna/ocpm/internal/github"
	"github.com/hykilpikonna/ocpm/internal/kext"
	"github.com/hykilpikonna/ocpm/internal/logger"
	"github.com/hykilpikonna/ocpm/internal/repos"
)

var (
	// ErrUnsupportedRepo is returned when a mapping entry does not point at
	// the supported source-control host.
	ErrUnsupportedRepo = errors.New("repository is not hosted on github.com")
	// ErrNoRelease is returned when a repository has no eligible release.
	ErrNoRelease = errors.New("no eligible release found")
	// ErrNoArtifact is returned when a release has no usable artifact.
	ErrNoArtifact = errors.New("release has no usable artifact")
)

const (
	// githubHostMarker splits a repository URL into host and "owner/repo".
	githubHostMarker = "github.com/"

	// debugSuffix marks debug builds excluded from artifact selection.
	debugSuffix = "DEBUG.zip"

	// DefaultConcurrency is the default worker pool size.
	DefaultConcurrency = 32
)

// Artifact is the downloadable file selected from a release.
type Artifact struct {
	// Name is the artifact filename.
	Name string
	// Size is the artifact size in bytes.
	Size int64
	// URL is where the artifact is fetched from.
	URL string
}

// Release is an upstream release resolved for a kext: its tag with any
// leading "v" stripped, exactly one deterministically selected artifact, and
// the raw upstream metadata.
type Release struct {
	// Tag is the version string.
	Tag string
	// Artifact is the selected download.
	Artifact Artifact
	// Raw is the upstream release as returned by the API.
	Raw github.Release
}

// ReleaseLister is the part of the GitHub client the fetcher needs.
type ReleaseLister interface {
	ListReleases(ctx context.Context, ownerRepo string) ([]github.Release, error)
}

// Fetcher resolves latest releases against the repository mapping.
type Fetcher struct {
	client             ReleaseLister
	mapping            *repos.Mapping
	includePrereleases bool
	concurrency        int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithPrereleases includes prereleases in resolution.
func WithPrereleases(include bool) Option {
	return func(f *Fetcher) {
		f.includePrereleases = include
	}
}

// WithConcurrency bounds the worker pool size.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// New creates a Fetcher over the given client and mapping.
func New(client ReleaseLister, mapping *repos.Mapping, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		mapping:     mapping,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Latest resolves the newest eligible release for one kext name.
func (f *Fetcher) Latest(ctx context.Context, name string) (*Release, error) {
	entry, err := f.mapping.Lookup(name)
	if err != nil {
		return nil, err
	}

	_, ownerRepo, found := strings.Cut(entry.Repo, githubHostMarker)
	if !found {
		return nil, fmt.Errorf("%s: %s: %w", name, entry.Repo, ErrUnsupportedRepo)
	}

	ownerRepo = strings.Trim(ownerRepo, "/")

	releases, err := f.client.ListReleases(ctx, ownerRepo)
	if err != nil {
		return nil, err
	}

	// Releases arrive newest first; the first one surviving the prerelease
	// filter wins.
	for _, raw := range releases {
		if raw.Prerelease && !f.includePrereleases {
			continue
		}

		return newRelease(raw)
	}

	return nil, fmt.Errorf("%s: %w", ownerRepo, ErrNoRelease)
}

// FetchLatest resolves releases for all kexts through the worker pool.
// The result aligns with the input by position; a kext whose resolution
// failed gets a nil slot and a logged diagnostic.
func (f *Fetcher) FetchLatest(ctx context.Context, kexts []*kext.Kext) []*Release {
	results := make([]*Release, len(kexts))

	var group errgroup.Group

	group.SetLimit(f.concurrency)

	for i, k := range kexts {
		i, k := i, k

		group.Go(func() error {
			release, err := f.Latest(ctx, k.Name)
			if err != nil {
				logger.WarnKV(ctx, "Skipping kext", "kext", k.Name, "error", err)
				return nil
			}

			results[i] = release

			return nil
		})
	}

	// Workers never return errors; failures are absent results.
	_ = group.Wait()

	return results
}

// newRelease strips the tag prefix and selects the release artifact.
func newRelease(raw github.Release) (*Release, error) {
	asset, err := selectAsset(raw.Assets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", raw.TagName, err)
	}

	return &Release{
		Tag: strings.TrimPrefix(raw.TagName, "v"),
		Artifact: Artifact{
			Name: asset.Name,
			Size: asset.Size,
			URL:  asset.BrowserDownloadURL,
		},
		Raw: raw,
	}, nil
}

// selectAsset picks the release artifact deterministically: a single asset is
// taken as-is; otherwise debug builds are excluded and the first remaining
// asset in API order wins.
func selectAsset(assets []github.Asset) (github.Asset, error) {
	if len(assets) == 1 {
		return assets[0], nil
	}

	for _, asset := range assets {
		if strings.HasSuffix(asset.Name, debugSuffix) {
			continue
		}

		return asset, nil
	}

	return github.Asset{}, ErrNoArtifact
}
