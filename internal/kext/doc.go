// Package kext models installed kernel-extension bundles and provides the
// registry scan that discovers them, plus the version comparison used to
// decide update eligibility.
package kext
