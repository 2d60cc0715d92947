// Package installer executes the update transaction: download, extract,
// backup, install.
//
// Each stage operates per kext; a failure at any stage drops that kext from
// later stages with a reported diagnostic and never blocks its siblings.
// Displaced bundles are moved, not copied, into a per-run backup directory,
// and the scratch area is removed unconditionally at the end.
package installer
