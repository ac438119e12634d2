package extract

import (
	"strconv"
	"strings"
)

// sentinelValues are placeholder strings mirrors emit for missing metadata.
var sentinelValues = map[string]struct{}{
	"-":         {},
	"n/a":       {},
	"unknown":   {},
	"null":      {},
	"undefined": {},
}

// allowedExtensions is the set of ebook/document formats worth surfacing.
var allowedExtensions = map[string]struct{}{
	"pdf":  {},
	"epub": {},
	"mobi": {},
	"azw":  {},
	"azw3": {},
	"djvu": {},
	"fb2":  {},
	"txt":  {},
	"rtf":  {},
	"doc":  {},
	"docx": {},
	"chm":  {},
	"lit":  {},
	"cbz":  {},
	"cbr":  {},
}

// IsSentinel reports whether a field value is one of the placeholder
// "unknown" strings.
func IsSentinel(value string) bool {
	_, ok := sentinelValues[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// IsAllowedExtension reports whether ext (without dot, any case) is a known
// ebook or document format.
func IsAllowedExtension(ext string) bool {
	_, ok := allowedExtensions[strings.ToLower(strings.TrimSpace(ext))]
	return ok
}

// ParseFilesize parses a declared filesize into bytes. Returns false when
// the value is absent, non-numeric, or not positive.
func ParseFilesize(value string) (int64, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Valid is the gate every scraped record must pass before aggregation:
// title, author, and extension present and non-sentinel, extension in the
// allow-list, and any declared filesize a positive integer.
func Valid(title, author, ext, filesize string) bool {
	if strings.TrimSpace(title) == "" || IsSentinel(title) {
		return false
	}
	if strings.TrimSpace(author) == "" || IsSentinel(author) {
		return false
	}
	if strings.TrimSpace(ext) == "" || IsSentinel(ext) {
		return false
	}
	if !IsAllowedExtension(ext) {
		return false
	}
	if strings.TrimSpace(filesize) != "" {
		if _, ok := ParseFilesize(filesize); !ok {
			return false
		}
	}
	return true
}
