package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hykilpikonna/ocpm/internal/fetcher"
	"github.com/hykilpikonna/ocpm/internal/kext"
	"github.com/hykilpikonna/ocpm/internal/oc"
)

var errNoSuchArtifact = errors.New("no such artifact")

// fakeDownloader serves canned artifact bytes by URL and counts requests.
type fakeDownloader struct {
	artifacts map[string][]byte
	requests  map[string]int
}

// Download writes the canned bytes for the URL to dest.
func (d *fakeDownloader) Download(_ context.Context, url, dest string) error {
	if d.requests == nil {
		d.requests = make(map[string]int)
	}

	d.requests[url]++

	data, ok := d.artifacts[url]
	if !ok {
		return errNoSuchArtifact
	}

	return os.WriteFile(dest, data, 0o644)
}

// zipBundle builds a zip holding the given files, emitting directory entries
// for every parent the way release archives do.
func zipBundle(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)
	seen := make(map[string]bool)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		dir := path.Dir(name)
		for dir != "." && dir != "/" {
			if !seen[dir] {
				seen[dir] = true

				_, err := w.Create(dir + "/")
				require.NoError(t, err)
			}

			dir = path.Dir(dir)
		}

		f, err := w.Create(name)
		require.NoError(t, err)

		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return buf.Bytes()
}

// newEFITree builds a minimal OpenCore EFI tree and returns its layout.
func newEFITree(t *testing.T) *oc.Layout {
	t.Helper()

	mount := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mount, "EFI", "OC", "Kexts"), 0o755))

	layout, err := oc.ResolveLayout(mount)
	require.NoError(t, err)

	return layout
}

// update builds a plan entry for the given kext and artifact.
func update(layout *oc.Layout, name, tag, assetName string) fetcher.Update {
	return fetcher.Update{
		Kext: &kext.Kext{
			Path:    filepath.Join(layout.KextsDir(), name+".kext"),
			Name:    name,
			Version: "0.0.1",
		},
		Release: &fetcher.Release{
			Tag: tag,
			Artifact: fetcher.Artifact{
				Name: assetName,
				URL:  "https://example.com/" + assetName,
			},
		},
	}
}

// fixedClock pins the backup directory name.
func fixedClock() time.Time {
	return time.Date(2023, 6, 7, 13, 37, 0, 0, time.UTC)
}

// TestRunUpdatesExistingBundle covers the backup invariant: the displaced
// bundle lands in a single run-stamped directory and the live path holds the
// new content.
func TestRunUpdatesExistingBundle(t *testing.T) {
	t.Parallel()

	layout := newEFITree(t)

	// Pre-existing install.
	old := filepath.Join(layout.KextsDir(), "Lilu.kext", "Contents")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "Info.plist"), []byte("old"), 0o644))

	u := update(layout, "Lilu", "1.6.1", "Lilu-1.6.1-RELEASE.zip")
	downloader := &fakeDownloader{artifacts: map[string][]byte{
		u.Release.Artifact.URL: zipBundle(t, map[string]string{
			"Lilu.kext/Contents/Info.plist": "new",
			"Lilu.kext/Contents/MacOS/Lilu": "binary",
			"unrelated/README.md":           "skip me",
		}),
	}}

	tx := NewTransaction(downloader, layout)
	tx.now = fixedClock

	installed, err := tx.Run(context.Background(), []fetcher.Update{u})
	require.NoError(t, err)
	require.Len(t, installed, 1)

	// Live path holds the new content.
	data, err := os.ReadFile(filepath.Join(layout.KextsDir(), "Lilu.kext", "Contents", "Info.plist"))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	_, err = os.Stat(filepath.Join(layout.KextsDir(), "Lilu.kext", "Contents", "MacOS", "Lilu"))
	require.NoError(t, err)

	// Exactly one backup copy under the run-stamped directory.
	backupDir := filepath.Join(layout.BackupRoot(), "06-07 13-37")

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Lilu.kext", entries[0].Name())

	data, err = os.ReadFile(filepath.Join(backupDir, "Lilu.kext", "Contents", "Info.plist"))
	require.NoError(t, err)
	require.Equal(t, "old", string(data))

	// Scratch area is gone.
	_, err = os.Stat(filepath.Join(filepath.Dir(layout.Root), ".ocpm-scratch"))
	require.True(t, os.IsNotExist(err))
}

// TestRunFreshInstallSkipsBackup creates no backup directory at all.
func TestRunFreshInstallSkipsBackup(t *testing.T) {
	t.Parallel()

	layout := newEFITree(t)

	u := update(layout, "NVMeFix", "1.1.0", "NVMeFix-1.1.0-RELEASE.zip")
	downloader := &fakeDownloader{artifacts: map[string][]byte{
		u.Release.Artifact.URL: zipBundle(t, map[string]string{
			"NVMeFix.kext/Contents/Info.plist": "fresh",
		}),
	}}

	tx := NewTransaction(downloader, layout)
	tx.now = fixedClock

	installed, err := tx.Run(context.Background(), []fetcher.Update{u})
	require.NoError(t, err)
	require.Len(t, installed, 1)

	_, err = os.Stat(filepath.Join(layout.KextsDir(), "NVMeFix.kext", "Contents", "Info.plist"))
	require.NoError(t, err)

	_, err = os.Stat(layout.BackupRoot())
	require.True(t, os.IsNotExist(err))
}

// TestRunIsolatesFailures drops broken packages while siblings proceed.
func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	layout := newEFITree(t)

	good := update(layout, "Lilu", "1.6.1", "Lilu-1.6.1-RELEASE.zip")
	notZip := update(layout, "AppleALC", "1.8.0", "AppleALC-1.8.0-RELEASE.zip")
	wrongContent := update(layout, "CPUFriend", "1.2.0", "CPUFriend-1.2.0-RELEASE.zip")
	unavailable := update(layout, "IntelMausi", "1.0.8", "IntelMausi-1.0.8-RELEASE.zip")

	downloader := &fakeDownloader{artifacts: map[string][]byte{
		good.Release.Artifact.URL: zipBundle(t, map[string]string{
			"Lilu.kext/Contents/Info.plist": "new",
		}),
		notZip.Release.Artifact.URL: []byte("definitely not a zip"),
		wrongContent.Release.Artifact.URL: zipBundle(t, map[string]string{
			"SomethingElse.kext/Contents/Info.plist": "nope",
		}),
	}}

	tx := NewTransaction(downloader, layout)
	tx.now = fixedClock

	installed, err := tx.Run(context.Background(),
		[]fetcher.Update{good, notZip, wrongContent, unavailable})
	require.NoError(t, err)
	require.Len(t, installed, 1)
	require.Equal(t, "Lilu", installed[0].Kext.Name)

	_, err = os.Stat(filepath.Join(layout.KextsDir(), "Lilu.kext"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(layout.KextsDir(), "AppleALC.kext"))
	require.True(t, os.IsNotExist(err))
}

// TestDownloadIsIdempotent reuses an artifact already present in the scratch
// area without touching the network.
func TestDownloadIsIdempotent(t *testing.T) {
	t.Parallel()

	layout := newEFITree(t)
	u := update(layout, "Lilu", "1.6.1", "Lilu-1.6.1-RELEASE.zip")

	downloader := &fakeDownloader{artifacts: map[string][]byte{}}
	tx := NewTransaction(downloader, layout)

	scratch := t.TempDir()
	existing := filepath.Join(scratch, u.Release.Artifact.Name)
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	items := tx.download(context.Background(), scratch, []*item{{update: u}})
	require.Len(t, items, 1)
	require.Equal(t, existing, items[0].archivePath)

	// No network request, file untouched.
	require.Empty(t, downloader.requests)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "already here", string(data))
}

// TestExtractBundleMatchesCaseInsensitively finds bundles whatever the case
// of the archive path and rejects archives without the bundle.
func TestExtractBundleMatchesCaseInsensitively(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "itlwm.zip")
	require.NoError(t, os.WriteFile(archive, zipBundle(t, map[string]string{
		"Release/ITLWM.KEXT/Contents/Info.plist": "caps",
	}), 0o644))

	bundle, err := extractBundle(archive, "itlwm", filepath.Join(dir, "out"))
	require.NoError(t, err)

	// Original case from the archive is preserved.
	require.Equal(t, "ITLWM.KEXT", filepath.Base(bundle))

	data, err := os.ReadFile(filepath.Join(bundle, "Contents", "Info.plist"))
	require.NoError(t, err)
	require.Equal(t, "caps", string(data))

	// Bundle missing entirely.
	_, err = extractBundle(archive, "Lilu", filepath.Join(dir, "out2"))
	require.ErrorIs(t, err, ErrBundleNotFound)

	// Not a zip.
	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("text"), 0o644))

	_, err = extractBundle(plain, "Lilu", filepath.Join(dir, "out3"))
	require.ErrorIs(t, err, ErrNotZipArchive)
}

// TestExtractEntryRejectsTraversal refuses entries escaping the root.
func TestExtractEntryRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)
	_, err := w.Create("Evil.kext/")
	require.NoError(t, err)

	f, err := w.Create("Evil.kext/../../escape.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("boom"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	_, err = extractBundle(archive, "Evil", filepath.Join(dir, "out"))
	require.ErrorIs(t, err, errUnsafeArchivePath)

	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	require.True(t, os.IsNotExist(err))
}
