package installer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hykilpikonna/ocpm/internal/fetcher"
	"github.com/hykilpikonna/ocpm/internal/kext"
	"github.com/hykilpikonna/ocpm/internal/logger"
	"github.com/hykilpikonna/ocpm/internal/oc"
)

var (
	// ErrNotZipArchive is returned when a downloaded artifact is not a zip.
	ErrNotZipArchive = errors.New("artifact is not a zip archive")
	// ErrBundleNotFound is returned when the expected kext bundle is absent
	// inside an artifact.
	ErrBundleNotFound = errors.New("kext bundle not found in artifact")
	// errUnsafeArchivePath is returned for entries escaping the extraction root.
	errUnsafeArchivePath = errors.New("unsafe path in archive")
)

const (
	// backupTimeLayout names per-run backup directories, minute resolution.
	backupTimeLayout = "01-02 15-04"

	// scratchDirName is the scratch area created next to the EFI tree. It
	// lives on the same filesystem as the install targets so every move is
	// an atomic rename. Removed unconditionally when the transaction ends;
	// artifacts surviving an interrupted run are reused instead of
	// re-downloaded.
	scratchDirName = ".ocpm-scratch"

	// extractDirName is the extraction area inside the scratch directory.
	extractDirName = "extracted"

	// dirMode is used for directories the transaction creates.
	dirMode os.FileMode = 0o755
)

// Downloader fetches one URL into a destination file.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Transaction executes update batches against one EFI tree.
type Transaction struct {
	downloader Downloader
	layout     *oc.Layout

	// now is replaceable in tests to pin the backup directory name.
	now func() time.Time
}

// NewTransaction creates a Transaction.
func NewTransaction(downloader Downloader, layout *oc.Layout) *Transaction {
	return &Transaction{
		downloader: downloader,
		layout:     layout,
		now:        time.Now,
	}
}

// item tracks one kext through the transaction stages.
type item struct {
	update      fetcher.Update
	archivePath string
	bundlePath  string
}

// Run executes the four transaction stages over the batch and returns the
// updates that were fully installed. The boot configuration and the
// repository mapping are never touched here.
func (t *Transaction) Run(ctx context.Context, updates []fetcher.Update) ([]fetcher.Update, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	scratch := filepath.Join(filepath.Dir(t.layout.Root), scratchDirName)
	if err := os.MkdirAll(filepath.Join(scratch, extractDirName), dirMode); err != nil {
		return nil, fmt.Errorf("create scratch area: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	items := make([]*item, 0, len(updates))
	for _, u := range updates {
		items = append(items, &item{update: u})
	}

	items = t.download(ctx, scratch, items)
	items = t.extract(ctx, scratch, items)
	items = t.backup(ctx, items)
	items = t.install(ctx, items)

	installed := make([]fetcher.Update, 0, len(items))
	for _, it := range items {
		installed = append(installed, it.update)
	}

	return installed, nil
}

// download fetches each artifact into the scratch area. An artifact file
// that already exists is reused without a network request.
func (t *Transaction) download(ctx context.Context, scratch string, items []*item) []*item {
	kept := items[:0]

	for _, it := range items {
		dest := filepath.Join(scratch, it.update.Release.Artifact.Name)

		if _, err := os.Stat(dest); err == nil {
			logger.InfoKV(ctx, "Artifact already downloaded", "file", filepath.Base(dest))

			it.archivePath = dest
			kept = append(kept, it)

			continue
		}

		if err := t.downloader.Download(ctx, it.update.Release.Artifact.URL, dest); err != nil {
			logger.WarnKV(ctx, "Download failed, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		it.archivePath = dest
		kept = append(kept, it)
	}

	return kept
}

// extract unpacks each kext's bundle from its artifact into the scratch
// extraction area.
func (t *Transaction) extract(ctx context.Context, scratch string, items []*item) []*item {
	kept := items[:0]

	for _, it := range items {
		dest := filepath.Join(scratch, extractDirName, it.update.Kext.Name)

		bundlePath, err := extractBundle(it.archivePath, it.update.Kext.Name, dest)
		if err != nil {
			logger.WarnKV(ctx, "Extraction failed, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		it.bundlePath = bundlePath
		kept = append(kept, it)
	}

	return kept
}

// backup displaces existing install directories into the per-run backup
// directory, keeping their original names. Fresh installs pass through; the
// backup directory is only created when something needs displacing.
func (t *Transaction) backup(ctx context.Context, items []*item) []*item {
	backupDir := filepath.Join(t.layout.BackupRoot(), t.now().Format(backupTimeLayout))
	kept := items[:0]

	for _, it := range items {
		target := it.update.Kext.Path

		if _, err := os.Stat(target); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Fresh install, nothing to displace.
				kept = append(kept, it)
				continue
			}

			logger.WarnKV(ctx, "Cannot inspect install path, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		if err := os.MkdirAll(backupDir, dirMode); err != nil {
			logger.WarnKV(ctx, "Cannot create backup directory, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		if err := os.Rename(target, filepath.Join(backupDir, filepath.Base(target))); err != nil {
			logger.WarnKV(ctx, "Backup failed, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		logger.DebugKV(ctx, "Backed up bundle", "kext", it.update.Kext.Name, "dir", backupDir)
		kept = append(kept, it)
	}

	return kept
}

// install moves each extracted bundle into its final install path.
func (t *Transaction) install(ctx context.Context, items []*item) []*item {
	kept := items[:0]

	for _, it := range items {
		if err := os.Rename(it.bundlePath, it.update.Kext.Path); err != nil {
			logger.WarnKV(ctx, "Install failed, skipping kext",
				"kext", it.update.Kext.Name, "error", err)

			continue
		}

		logger.InfoKV(ctx, "Installed kext",
			"kext", it.update.Kext.Name, "version", it.update.Release.Tag)

		kept = append(kept, it)
	}

	return kept
}

// extractBundle opens archivePath strictly as a zip, locates the single
// entry whose path ends with "<name>.kext/" case-insensitively, and extracts
// that entry and everything nested under it into destRoot, preserving
// relative structure. The extracted bundle directory path is returned.
func extractBundle(archivePath, name, destRoot string) (string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(archivePath), ErrNotZipArchive)
	}

	defer func() {
		_ = reader.Close()
	}()

	marker := strings.ToLower(name+kext.BundleSuffix) + "/"

	var prefix string

	for _, f := range reader.File {
		if strings.HasSuffix(strings.ToLower(f.Name), marker) {
			prefix = f.Name
			break
		}
	}

	if prefix == "" {
		return "", fmt.Errorf("%s%s in %s: %w",
			name, kext.BundleSuffix, filepath.Base(archivePath), ErrBundleNotFound)
	}

	// Preserve the bundle directory's original name from the archive.
	bundleDir := filepath.Join(destRoot, filepath.Base(strings.TrimSuffix(prefix, "/")))

	for _, f := range reader.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}

		rel := strings.TrimPrefix(f.Name, prefix)
		if err := extractEntry(f, bundleDir, rel); err != nil {
			return "", err
		}
	}

	return bundleDir, nil
}

// extractEntry writes one archive entry under root, guarding against path
// traversal.
func extractEntry(f *zip.File, root, rel string) error {
	target := filepath.Join(root, filepath.FromSlash(rel))

	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) {
		return fmt.Errorf("%s: %w", f.Name, errUnsafeArchivePath)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, dirMode)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}

	defer func() {
		_ = src.Close()
	}()

	mode := f.Mode()
	if mode.Perm() == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, src); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
