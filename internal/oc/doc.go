// Package oc deals with the OpenCore side of the EFI partition: resolving
// the expected directory layout and patching Config.plist so installed kexts
// are enabled at boot.
package oc
