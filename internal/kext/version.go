package kext

import (
	"math/big"
	"strings"
)

// Newer reports whether candidate is strictly newer than installed.
//
// Both versions are split on ".". Segment pairs compare numerically when both
// sides parse as integers (arbitrary precision, so "10" beats "9") and as
// literal strings otherwise. Missing trailing segments count as zero, making
// "1.2" equal to "1.2.0". The first differing pair decides.
func Newer(installed, candidate string) bool {
	return compareVersions(installed, candidate) < 0
}

// compareVersions returns -1, 0 or 1 ordering a against b.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}

		if i < len(bs) {
			bv = bs[i]
		}

		ai, aok := new(big.Int).SetString(av, 10)
		bi, bok := new(big.Int).SetString(bv, 10)

		if aok && bok {
			if c := ai.Cmp(bi); c != 0 {
				return c
			}

			continue
		}

		if av != bv {
			if av < bv {
				return -1
			}

			return 1
		}
	}

	return 0
}
