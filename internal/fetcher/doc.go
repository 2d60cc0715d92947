// Package fetcher resolves the latest eligible GitHub release for each kext
// and computes the update plan.
//
// Kexts are resolved independently through a bounded worker pool. One kext's
// failure never blocks or cancels its siblings; results stay aligned with the
// request order.
package fetcher
