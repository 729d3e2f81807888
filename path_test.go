// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"a/b/c.txt":     `a\b\c.txt`,
		`\leading.txt`:  "leading.txt",
		"  padded.txt ": "padded.txt",
		`.\rel.txt`:     "rel.txt",
		`trail\`:        "trail",
		"":              "",
	}

	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`unit\neutral\chicken.mdx`: "chicken.mdx",
		"plain.txt":                "plain.txt",
		`mixed/slash\name.txt`:     "name.txt",
	}

	for in, want := range cases {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldName(t *testing.T) {
	t.Parallel()

	if foldName(`Units/Human\Footman.MDX`) != foldName(`units\human\footman.mdx`) {
		t.Fatal("folded names must match across case and slash style")
	}
}

func TestPlaceholderNames(t *testing.T) {
	t.Parallel()

	name := placeholderName(42)
	if !isPlaceholderName(name) {
		t.Fatalf("%q not recognized as placeholder", name)
	}
	if isPlaceholderName("real_file.txt") {
		t.Fatal("real name mistaken for placeholder")
	}
}

func TestNormalizeExtractEntryPath(t *testing.T) {
	t.Parallel()

	good, err := normalizeExtractEntryPath(`maps\download\file.w3x`)
	if err != nil {
		t.Fatal(err)
	}
	if good != "maps/download/file.w3x" {
		t.Fatalf("got %q", good)
	}

	for _, bad := range []string{`..\escape.txt`, `a\..\..\b`, `c:\windows\evil`, ""} {
		if _, err := normalizeExtractEntryPath(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}

	if _, err := normalizeExtractEntryPath(`..`); !errors.Is(err, ErrExtractPathOutsideRoot) &&
		!errors.Is(err, ErrInvalidExtractPath) {
		t.Errorf("parent path: %v", err)
	}
}
