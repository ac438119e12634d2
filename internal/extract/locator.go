// Package extract holds the pure metadata transforms: locator parsing,
// record validation, ISBN extraction, and relevance scoring. Nothing in this
// package performs I/O.
package extract

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ParsedLocator is the best-effort decomposition of a filename-like string.
type ParsedLocator struct {
	Title     string
	Author    string
	Year      string
	Extension string
}

// locatorPattern matches "<left> - <right> (<year>).<ext>".
var locatorPattern = regexp.MustCompile(`^(.+?) - (.+?) \((\d{4})\)\.([A-Za-z0-9]+)$`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseLocator decomposes a locator into title/author/year/extension.
//
// knownAuthor, when non-empty, disambiguates which side of the dash is the
// author: if the right side equals the hint the sides are swapped, otherwise
// the left side is taken as the author (the match is preferred over the
// unmatched guess). Fallbacks: a naive dash split (first segment author,
// remainder title), then the whole string as title when no dash exists.
func ParseLocator(raw, knownAuthor string) ParsedLocator {
	name := normalizeLocator(raw)

	if m := locatorPattern.FindStringSubmatch(name); m != nil {
		left, right, year, ext := m[1], m[2], m[3], strings.ToLower(m[4])

		author, title := left, right
		if knownAuthor != "" && right == knownAuthor && left != knownAuthor {
			author, title = right, left
		}

		return ParsedLocator{
			Title:     title,
			Author:    author,
			Year:      year,
			Extension: ext,
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	if idx := strings.Index(stem, " - "); idx >= 0 {
		return ParsedLocator{
			Author:    strings.TrimSpace(stem[:idx]),
			Title:     strings.TrimSpace(stem[idx+3:]),
			Extension: ext,
		}
	}

	return ParsedLocator{
		Title:     strings.TrimSpace(stem),
		Extension: ext,
	}
}

// normalizeLocator replaces underscores with spaces and collapses whitespace
// runs so separator style differences across mirrors don't defeat the
// pattern match.
func normalizeLocator(raw string) string {
	s := strings.ReplaceAll(raw, "_", " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
