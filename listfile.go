// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import "strings"

// Internal member names.
const (
	listfileName   = "(listfile)"
	attributesName = "(attributes)"
	signatureName  = "(signature)"
)

// parseListfile splits a listfile into member names. Lines separate on LF,
// CRLF or semicolons; blank lines are skipped.
func parseListfile(data []byte) []string {
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';'
	})

	names := make([]string, 0, len(fields))
	for _, field := range fields {
		name := NormalizePath(field)
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return names
}

// buildListfile renders member names one per CRLF-terminated line.
func buildListfile(names []string) []byte {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString("\r\n")
	}

	return []byte(b.String())
}
