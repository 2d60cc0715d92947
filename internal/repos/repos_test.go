package repos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseBothEntryForms accepts bare URLs and structured records.
func TestParseBothEntryForms(t *testing.T) {
	t.Parallel()

	m, err := parse([]byte(`
Repos:
  Lilu: https://github.com/acidanthera/Lilu
  itlwm:
    Repo: https://github.com/OpenIntelWireless/itlwm
    Artifact: itlwm
`))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	bare, err := m.Lookup("Lilu")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acidanthera/Lilu", bare.Repo)
	require.Empty(t, bare.Artifact)

	detailed, err := m.Lookup("itlwm")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/OpenIntelWireless/itlwm", detailed.Repo)
	require.Equal(t, "itlwm", detailed.Artifact)
}

// TestLookupIsCaseInsensitive matches names regardless of case.
func TestLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	m, err := Default()
	require.NoError(t, err)

	for _, name := range []string{"Lilu", "lilu", "LILU"} {
		entry, err := m.Lookup(name)
		require.NoError(t, err)
		require.Equal(t, "https://github.com/acidanthera/Lilu", entry.Repo)
	}

	_, err = m.Lookup("Unknownkext")
	require.ErrorIs(t, err, ErrKextNotFound)
}

// TestLoadFile reads an override mapping and rejects broken ones.
func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "repos.yml")
	require.NoError(t, os.WriteFile(path, []byte("Repos:\n  Foo: https://github.com/bar/foo\n"), 0o644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	// Missing file.
	_, err = LoadFile(filepath.Join(dir, "nope.yml"))
	require.ErrorIs(t, err, ErrMappingInvalid)

	// Unparseable file.
	require.NoError(t, os.WriteFile(path, []byte("Repos: [not a map"), 0o644))
	_, err = LoadFile(path)
	require.ErrorIs(t, err, ErrMappingInvalid)

	// Empty mapping.
	require.NoError(t, os.WriteFile(path, []byte("Repos: {}\n"), 0o644))
	_, err = LoadFile(path)
	require.ErrorIs(t, err, ErrMappingInvalid)
}
