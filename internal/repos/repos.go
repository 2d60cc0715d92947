package repos

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed repos.yml
var defaultMapping []byte

var (
	// ErrKextNotFound is returned when a kext has no mapping entry.
	ErrKextNotFound = errors.New("kext is not in the repository mapping")
	// ErrMappingInvalid is returned when the mapping cannot be read or parsed.
	ErrMappingInvalid = errors.New("repository mapping is invalid")
)

// Entry is one repository mapping value. The YAML form is either a bare URL
// string or a record {Repo: url, Artifact: hint}.
type Entry struct {
	// Repo is the upstream repository URL.
	Repo string `yaml:"Repo"`
	// Artifact is an optional artifact name hint. It is accepted and stored
	// but not consulted by current artifact selection; reserved for future
	// filtering.
	Artifact string `yaml:"Artifact"`
}

// UnmarshalYAML accepts both the bare-string and the structured record form.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&e.Repo)
	case yaml.MappingNode:
		type plain Entry

		return value.Decode((*plain)(e))
	default:
		return fmt.Errorf("%w: unexpected value on line %d", ErrMappingInvalid, value.Line)
	}
}

// mappingFile is the on-disk shape of the repository mapping.
type mappingFile struct {
	Repos map[string]Entry `yaml:"Repos"`
}

// Mapping is a read-only, case-insensitive lookup from kext name to its
// repository entry.
type Mapping struct {
	entries map[string]Entry
}

// Default returns the mapping embedded in the binary.
func Default() (*Mapping, error) {
	return parse(defaultMapping)
}

// LoadFile reads a mapping override from disk.
func LoadFile(path string) (*Mapping, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMappingInvalid, err)
	}

	return parse(data)
}

// parse decodes mapping YAML, lowercasing keys for case-insensitive lookup.
func parse(data []byte) (*Mapping, error) {
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMappingInvalid, err)
	}

	if len(file.Repos) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrMappingInvalid)
	}

	entries := make(map[string]Entry, len(file.Repos))
	for name, entry := range file.Repos {
		entries[strings.ToLower(name)] = entry
	}

	return &Mapping{entries: entries}, nil
}

// Lookup resolves a kext name case-insensitively.
func (m *Mapping) Lookup(name string) (Entry, error) {
	entry, ok := m.entries[strings.ToLower(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrKextNotFound)
	}

	return entry, nil
}

// Len returns the number of mapping entries.
func (m *Mapping) Len() int {
	return len(m.entries)
}
