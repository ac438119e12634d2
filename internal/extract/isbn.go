package extract

import (
	"regexp"
	"strings"
)

// isbnPattern matches ISBN-10 and ISBN-13 with optional dash/space
// separators between digit groups. Mirrors embed these in free-text
// identifier blocks with wildly inconsistent hyphenation.
var isbnPattern = regexp.MustCompile(`\b(?:97[89][- ]?)?(?:\d[- ]?){9}[\dXx]\b`)

// ISBNs scans free text for ISBN-10/13 values, strips separators, verifies
// the check digit, and returns them deduplicated in first-seen order.
func ISBNs(text string) []string {
	matches := isbnPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	result := make([]string, 0, len(matches))

	for _, m := range matches {
		clean := strings.NewReplacer("-", "", " ", "").Replace(m)
		clean = strings.ToUpper(clean)
		if !validISBN10(clean) && !validISBN13(clean) {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		result = append(result, clean)
	}

	return result
}

// validISBN10 verifies the weighted mod-11 check digit. "X" stands for 10
// and is only legal in the final position.
func validISBN10(s string) bool {
	if len(s) != 10 {
		return false
	}
	sum := 0
	for i, r := range s {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += (10 - i) * v
	}
	return sum%11 == 0
}

// validISBN13 verifies the alternating 1/3-weighted mod-10 check digit.
func validISBN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		v := int(r - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}
