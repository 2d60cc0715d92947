package fetcher

import "github.com/hykilpikonna/ocpm/internal/kext"

// Update pairs an installed kext with the release that supersedes it.
type Update struct {
	// Kext is the installed (or provisional) record.
	Kext *kext.Kext
	// Release is the newer upstream release.
	Release *Release
}

// Plan zips kexts with their positionally aligned fetch results and keeps the
// pairs whose release is strictly newer than the installed version. The plan
// is computed fresh on every run and never persisted.
func Plan(kexts []*kext.Kext, releases []*Release) []Update {
	updates := make([]Update, 0, len(kexts))

	for i, k := range kexts {
		release := releases[i]
		if release == nil {
			continue
		}

		if !kext.Newer(k.Version, release.Tag) {
			continue
		}

		updates = append(updates, Update{Kext: k, Release: release})
	}

	return updates
}
