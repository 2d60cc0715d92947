// Package config defines ocpm settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type holds the GitHub API token, an optional repository mapping
// override, and tuning knobs for release resolution. A missing settings file
// is not an error; defaults apply.
package config
