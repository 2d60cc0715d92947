package oc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrOpenCoreNotFound is returned when the expected OC directory
	// structure is absent. It is fatal and aborts a run before any network
	// call or filesystem mutation.
	ErrOpenCoreNotFound = errors.New("OpenCore directory (OC) not found")
)

const (
	// efiDirName is the EFI subdirectory of a mounted ESP.
	efiDirName = "EFI"
	// ocDirName holds the OpenCore tree under the EFI directory.
	ocDirName = "OC"
	// kextsDirName holds installed kext bundles under OC.
	kextsDirName = "Kexts"
	// configFilename is the boot configuration manifest under OC.
	configFilename = "Config.plist"
	// backupsDirName holds per-run backups adjacent to the EFI directory.
	backupsDirName = "Backups"
)

// Layout is a resolved OpenCore EFI tree.
type Layout struct {
	// Root is the normalized EFI directory (the one containing OC).
	Root string
}

// ResolveLayout normalizes path into an OpenCore layout. Both the partition
// mount (containing EFI/) and the EFI directory itself are accepted. The OC
// directory must exist.
func ResolveLayout(path string) (*Layout, error) {
	root := path

	if info, err := os.Stat(filepath.Join(root, efiDirName)); err == nil && info.IsDir() {
		root = filepath.Join(root, efiDirName)
	}

	info, err := os.Stat(filepath.Join(root, ocDirName))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrOpenCoreNotFound)
	}

	return &Layout{Root: root}, nil
}

// KextsDir returns the installed kexts directory.
func (l *Layout) KextsDir() string {
	return filepath.Join(l.Root, ocDirName, kextsDirName)
}

// ConfigPath returns the boot configuration manifest path.
func (l *Layout) ConfigPath() string {
	return filepath.Join(l.Root, ocDirName, configFilename)
}

// BackupRoot returns the directory holding per-run backups, adjacent to the
// EFI directory.
func (l *Layout) BackupRoot() string {
	return filepath.Join(filepath.Dir(l.Root), backupsDirName)
}
