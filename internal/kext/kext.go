package kext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"

	"github.com/hykilpikonna/ocpm/internal/logger"
)

const (
	// BundleSuffix is the directory suffix that marks a kernel extension bundle.
	BundleSuffix = ".kext"

	// ProvisionalVersion marks a record synthesized for a fresh install.
	// Any published release compares newer than it.
	ProvisionalVersion = "0"

	// sdkPrefix is stripped from DTSDKName values ("macosx12.3" -> "12.3").
	sdkPrefix = "macosx"
)

// manifestRelPath locates the bundle manifest inside a kext directory.
var manifestRelPath = filepath.Join("Contents", "Info.plist")

// Kext describes one installed kernel-extension bundle.
// Name is the join key into the repository mapping, matched case-insensitively.
type Kext struct {
	// Path is the bundle's install location.
	Path string
	// Name is the bundle name from the manifest (or the directory basename
	// when the manifest is unreadable).
	Name string
	// ID is the bundle identifier. Optional.
	ID string
	// Version is the installed version.
	Version string
	// SDKOS is the macOS SDK the bundle was built against. Optional.
	SDKOS string
	// MinOS is the minimum supported macOS version. Optional.
	MinOS string
}

// bundleManifest mirrors the Info.plist fields ocpm consumes.
type bundleManifest struct {
	Name    string `plist:"CFBundleName"`
	ID      string `plist:"CFBundleIdentifier"`
	Version string `plist:"CFBundleVersion"`
	SDKOS   string `plist:"DTSDKName"`
	MinOS   string `plist:"LSMinimumSystemVersion"`
}

// BundleName returns the bundle directory basename without the suffix.
func (k *Kext) BundleName() string {
	return trimBundleSuffix(filepath.Base(k.Path))
}

// Load reads a kext bundle's manifest and builds its record.
func Load(path string) (*Kext, error) {
	data, err := os.ReadFile(filepath.Join(path, manifestRelPath))
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}

	var m bundleManifest
	if _, err := plist.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse bundle manifest: %w", err)
	}

	name := m.Name
	if name == "" {
		name = trimBundleSuffix(filepath.Base(path))
	}

	return &Kext{
		Path:    path,
		Name:    name,
		ID:      m.ID,
		Version: m.Version,
		SDKOS:   strings.TrimPrefix(m.SDKOS, sdkPrefix),
		MinOS:   m.MinOS,
	}, nil
}

// Scan discovers installed kext bundles in dir, in directory enumeration
// order. A bundle with a missing or unreadable manifest is reported and
// still returned as a degraded record; the scan never aborts on it.
func Scan(ctx context.Context, dir string) ([]*Kext, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read kexts directory: %w", err)
	}

	kexts := make([]*Kext, 0, len(entries))

	for _, entry := range entries {
		if !strings.HasSuffix(strings.ToLower(entry.Name()), BundleSuffix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		k, err := Load(path)
		if err != nil {
			logger.WarnKV(ctx, "Error loading kext bundle", "bundle", entry.Name(), "error", err)

			k = &Kext{
				Path: path,
				Name: trimBundleSuffix(entry.Name()),
			}
		}

		kexts = append(kexts, k)
	}

	return kexts, nil
}

// NewProvisional synthesizes a record for a kext that is not installed yet.
// Its version is provisional until the release is known.
func NewProvisional(kextsDir, name string) *Kext {
	return &Kext{
		Path:    filepath.Join(kextsDir, name+BundleSuffix),
		Name:    name,
		Version: ProvisionalVersion,
	}
}

// trimBundleSuffix drops a trailing ".kext" regardless of case.
func trimBundleSuffix(name string) string {
	if strings.HasSuffix(strings.ToLower(name), BundleSuffix) {
		return name[:len(name)-len(BundleSuffix)]
	}

	return name
}
