// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

// hashJenkins computes the 64-bit name hash used by HET/BET tables: slashes
// fold to backslashes, bytes fold to lower case, then the one-at-a-time mix
// runs in 64-bit arithmetic. Tables that store fewer bits truncate the result.
func hashJenkins(name string) uint64 {
	var h uint64

	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch == '/' {
			ch = '\\'
		}
		ch = asciiLower[ch]

		h += uint64(ch)
		h += h << 10
		h ^= h >> 6
	}

	h += h << 3
	h ^= h >> 11
	h += h << 15

	return h
}
