package oc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"

	"github.com/hykilpikonna/ocpm/internal/kext"
	"github.com/hykilpikonna/ocpm/internal/logger"
)

var (
	// ErrKextNotInstalled is returned when an enable target has no matching
	// installed bundle.
	ErrKextNotInstalled = errors.New("no installed kext matches the requested name")
	// errConfigMalformed is returned when Config.plist lacks the expected shape.
	errConfigMalformed = errors.New("boot configuration is malformed")
)

const (
	// entryArch is the fixed architecture value for synthesized entries.
	entryArch = "Any"
	// entryPlistPath is the manifest path for synthesized entries.
	entryPlistPath = "Contents/Info.plist"
	// executableDir is where a kext's executable lives inside the bundle.
	executableDir = "Contents/MacOS"
	// configFileMode is used when rewriting the boot configuration.
	configFileMode = 0o644
)

// EnableKexts patches the boot configuration so the named kexts are enabled,
// synthesizing entries for kexts that have none. Existing entries keep all
// fields except Enabled. A name with no matching installed bundle is reported
// and skipped; the rest of the batch proceeds.
func EnableKexts(ctx context.Context, layout *Layout, names []string) error {
	installed, err := kext.Scan(ctx, layout.KextsDir())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(layout.ConfigPath())
	if err != nil {
		return fmt.Errorf("read boot configuration: %w", err)
	}

	var root map[string]any
	if _, err = plist.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parse boot configuration: %w", err)
	}

	kernel, entries, err := kernelAdd(root)
	if err != nil {
		return err
	}

	// Case-normalized index by bundle path with the suffix stripped.
	// Lookups are case-insensitive; original case is preserved on write.
	index := make(map[string]map[string]any, len(entries))

	for _, item := range entries {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		bundlePath, _ := entry["BundlePath"].(string)
		if bundlePath == "" {
			continue
		}

		index[entryKey(bundlePath)] = entry
	}

	for _, name := range names {
		k := findInstalled(installed, name)
		if k == nil {
			logger.WarnKV(ctx, "Cannot enable kext", "kext", name, "error", ErrKextNotInstalled)
			continue
		}

		bundle := filepath.Base(k.Path)

		if entry, ok := index[entryKey(bundle)]; ok {
			entry["Enabled"] = true
			logger.InfoKV(ctx, "Enabled existing entry", "kext", bundle)

			continue
		}

		entry := newEntry(k.Path, bundle)
		entries = append(entries, entry)
		index[entryKey(bundle)] = entry

		logger.InfoKV(ctx, "Added entry", "kext", bundle)
	}

	kernel["Add"] = entries

	out, err := plist.MarshalIndent(root, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("serialize boot configuration: %w", err)
	}

	if err = os.WriteFile(layout.ConfigPath(), out, configFileMode); err != nil {
		return fmt.Errorf("write boot configuration: %w", err)
	}

	return nil
}

// kernelAdd extracts the Kernel section and its Add entry list, creating
// them when absent.
func kernelAdd(root map[string]any) (map[string]any, []any, error) {
	kernel, ok := root["Kernel"].(map[string]any)
	if !ok {
		if _, present := root["Kernel"]; present {
			return nil, nil, fmt.Errorf("Kernel section: %w", errConfigMalformed)
		}

		kernel = make(map[string]any)
		root["Kernel"] = kernel
	}

	add, ok := kernel["Add"].([]any)
	if !ok {
		if _, present := kernel["Add"]; present {
			return nil, nil, fmt.Errorf("Kernel > Add section: %w", errConfigMalformed)
		}

		add = make([]any, 0)
	}

	return kernel, add, nil
}

// entryKey normalizes a bundle path for index lookups.
func entryKey(bundlePath string) string {
	key := strings.ToLower(bundlePath)

	return strings.TrimSuffix(key, kext.BundleSuffix)
}

// findInstalled resolves an installed kext by case-insensitive bundle
// directory name.
func findInstalled(installed []*kext.Kext, name string) *kext.Kext {
	for _, k := range installed {
		if strings.EqualFold(k.BundleName(), name) {
			return k
		}
	}

	return nil
}

// newEntry synthesizes a boot configuration entry for a bundle.
func newEntry(bundlePath, bundle string) map[string]any {
	return map[string]any{
		"Arch":           entryArch,
		"BundlePath":     bundle,
		"Comment":        "",
		"Enabled":        true,
		"ExecutablePath": detectExecutable(bundlePath, strings.TrimSuffix(bundle, kext.BundleSuffix)),
		"MaxKernel":      "",
		"MinKernel":      "",
		"PlistPath":      entryPlistPath,
	}
}

// detectExecutable picks the entry's executable path: Contents/MacOS/<name>
// when present, else the first file under Contents/MacOS, else empty (some
// kexts are plist-only).
func detectExecutable(bundlePath, name string) string {
	dir := filepath.Join(bundlePath, filepath.FromSlash(executableDir))

	if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
		return executableDir + "/" + name
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		return executableDir + "/" + entry.Name()
	}

	return ""
}
