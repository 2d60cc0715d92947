// Package repos maps kext bundle names to the upstream GitHub repositories
// that publish them.
//
// The mapping is declarative YAML: each value is either a bare repository URL
// or a record with a Repo URL and an optional Artifact hint. A default
// mapping covering common open-source kexts is embedded in the binary and can
// be overridden with a file.
package repos
