// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// compressMatcher holds compiled allow-list rules for compression.
type compressMatcher struct {
	matcher *pathrules.Matcher
}

// newCompressMatcher compiles compression path rules. No rules means no
// matcher, and every entry stays a compression candidate.
func newCompressMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*compressMatcher, error) {
	rules = normalizeCompressRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressPattern, err)
	}

	return &compressMatcher{matcher: matcher}, nil
}

// normalizeCompressRules converts rule patterns to slash-separated matcher
// form and drops empty patterns.
func normalizeCompressRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.ReplaceAll(strings.TrimSpace(rule.Pattern), `\`, "/")
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// match reports whether an archive path is included by at least one rule.
// Rules match on slash-separated form.
func (m *compressMatcher) match(name string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := strings.ReplaceAll(NormalizePath(name), `\`, "/")
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}
