// Package github is a minimal client for the GitHub releases API: listing
// the releases of a repository and downloading release assets.
//
// An optional token enables authenticated rate limits. Requests carry a
// conservative default timeout; nothing is retried.
package github
