// Package pm orchestrates the ocpm pipeline: scanning installed kexts,
// resolving latest releases, computing the update plan, asking the user for
// confirmation, executing the install transaction and patching the boot
// configuration.
//
// Fatal precondition and configuration failures abort a run before any
// network call or filesystem mutation; per-kext failures only ever drop that
// kext from the batch.
package pm
