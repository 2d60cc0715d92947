package pm

import (
	"context"
	"strings"

	"github.com/hykilpikonna/ocpm/internal/config"
	"github.com/hykilpikonna/ocpm/internal/fetcher"
	"github.com/hykilpikonna/ocpm/internal/github"
	"github.com/hykilpikonna/ocpm/internal/installer"
	"github.com/hykilpikonna/ocpm/internal/kext"
	"github.com/hykilpikonna/ocpm/internal/logger"
	"github.com/hykilpikonna/ocpm/internal/oc"
	"github.com/hykilpikonna/ocpm/internal/repos"
)

// Options are inputs accepted by the pipeline entry points.
type Options struct {
	// EFIPath is the EFI directory (or its mount) to operate on.
	EFIPath string
	// ConfigPath is the optional path to the ocpm settings YAML file.
	ConfigPath string
	// Names are the kexts targeted by install and enable.
	Names []string
	// IncludePrereleases makes prereleases eligible during resolution.
	IncludePrereleases bool
	// SkipConfirmation applies the plan without prompting.
	SkipConfirmation bool
}

// runner holds the collaborators for a single pipeline execution.
// It is intentionally unexported; call RunUpdate/RunInstall/RunEnable.
type runner struct {
	cfg     *config.Config
	layout  *oc.Layout
	fetcher *fetcher.Fetcher
	tx      *installer.Transaction
}

// newRunner loads settings, resolves the EFI layout and wires the pipeline.
// Any failure here is fatal and happens before network or filesystem work.
func newRunner(opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	layout, err := oc.ResolveLayout(opts.EFIPath)
	if err != nil {
		return nil, err
	}

	mapping, err := loadMapping(cfg)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(cfg.GitHubToken, github.WithTimeout(cfg.Timeout))

	return &runner{
		cfg:    cfg,
		layout: layout,
		fetcher: fetcher.New(client, mapping,
			fetcher.WithPrereleases(opts.IncludePrereleases),
			fetcher.WithConcurrency(cfg.Concurrency)),
		tx: installer.NewTransaction(client, layout),
	}, nil
}

// loadMapping returns the mapping override when configured, the embedded
// default otherwise.
func loadMapping(cfg *config.Config) (*repos.Mapping, error) {
	if cfg.MappingPath != "" {
		return repos.LoadFile(cfg.MappingPath)
	}

	return repos.Default()
}

// RunUpdate scans installed kexts, computes the update plan and applies it
// after confirmation. Declining is not an error.
func RunUpdate(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "ocpm")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	kexts, err := kext.Scan(ctx, r.layout.KextsDir())
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Found %d kexts in %s", len(kexts), r.layout.KextsDir())

	releases := r.fetcher.FetchLatest(ctx, kexts)

	updates := fetcher.Plan(kexts, releases)
	if len(updates) == 0 {
		logger.Info(ctx, "Everything is up to date")
		return nil
	}

	printPlan(updates)

	if !confirm(opts.SkipConfirmation) {
		logger.Info(ctx, "Update declined, nothing was changed")
		return nil
	}

	installed, err := r.tx.Run(ctx, updates)
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Updated %d of %d kexts", len(installed), len(updates))

	return nil
}

// RunInstall resolves releases for the named kexts (fresh installs included),
// applies them after confirmation and enables them in the boot configuration.
func RunInstall(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "ocpm")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	installedNow, err := kext.Scan(ctx, r.layout.KextsDir())
	if err != nil {
		return err
	}

	targets := resolveTargets(installedNow, opts.Names, r.layout.KextsDir())
	releases := r.fetcher.FetchLatest(ctx, targets)

	updates := fetcher.Plan(targets, releases)
	if len(updates) > 0 {
		printPlan(updates)

		if !confirm(opts.SkipConfirmation) {
			logger.Info(ctx, "Install declined, nothing was changed")
			return nil
		}

		applied, err := r.tx.Run(ctx, updates)
		if err != nil {
			return err
		}

		// Fresh-install records learn their version once installed.
		for _, u := range applied {
			if u.Kext.Version == kext.ProvisionalVersion {
				u.Kext.Version = u.Release.Tag
			}
		}
	} else {
		logger.Info(ctx, "Requested kexts are already up to date")
	}

	return oc.EnableKexts(ctx, r.layout, opts.Names)
}

// RunEnable patches the boot configuration only; no network access.
func RunEnable(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "ocpm")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	return oc.EnableKexts(ctx, r.layout, opts.Names)
}

// resolveTargets maps requested names to installed records, synthesizing
// provisional records for kexts not installed yet.
func resolveTargets(installed []*kext.Kext, names []string, kextsDir string) []*kext.Kext {
	targets := make([]*kext.Kext, 0, len(names))

	for _, name := range names {
		target := kext.NewProvisional(kextsDir, name)

		for _, k := range installed {
			if strings.EqualFold(k.BundleName(), name) || strings.EqualFold(k.Name, name) {
				target = k
				break
			}
		}

		targets = append(targets, target)
	}

	return targets
}
