// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"fmt"
	"path"
	"strings"
)

// normalizeExtractEntryPath converts an archive path to a safe slash-form
// relative path for extraction. Absolute paths, drive prefixes and parent
// traversal are rejected.
func normalizeExtractEntryPath(name string) (string, error) {
	candidate := strings.ReplaceAll(NormalizePath(name), `\`, "/")
	if candidate == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtractPath, name)
	}

	if strings.Contains(candidate, ":") {
		return "", fmt.Errorf("%w: drive prefix in %q", ErrInvalidExtractPath, name)
	}

	cleaned := path.Clean(candidate)
	if cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("%w: %q", ErrExtractPathOutsideRoot, name)
	}

	for _, segment := range strings.Split(cleaned, "/") {
		if segment == "" {
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidExtractPath, name)
		}
	}

	return cleaned, nil
}
