// Package source models the raw, untrusted shapes scraped from mirror sites
// and metadata APIs, and normalizes them into the canonical catalog types.
// Raw maps never cross this package boundary.
package source

import (
	"strconv"
	"strings"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/extract"
)

// Kind tags which shape a raw record was scraped as.
type Kind string

const (
	KindAPIBook   Kind = "api-book"   // JSON edition+file payload
	KindSearchRow Kind = "search-row" // HTML search result row
)

// Record is the tagged union of known source shapes. Exactly one of the
// shape pointers is set, matching Kind.
type Record struct {
	Kind      Kind
	APIBook   *APIBook
	SearchRow *SearchRow
}

// APIBook is the JSON shape returned by mirror metadata endpoints.
type APIBook struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Publisher  string `json:"publisher"`
	Year       string `json:"year"`
	Language   string `json:"language"`
	Pages      string `json:"pages"`
	Extension  string `json:"extension"`
	Filesize   string `json:"filesize"`
	MD5        string `json:"md5"`
	CoverURL   string `json:"coverurl"`
	Identifier string `json:"identifier"`
	Locator    string `json:"locator"`
}

// SearchRow is one row scraped from an HTML search results table.
type SearchRow struct {
	ID         string
	Author     string
	Title      string
	Publisher  string
	Year       string
	Pages      string
	Language   string
	SizeText   string // e.g. "1168 Kb", "2 Mb"
	Extension  string
	MD5        string
	Identifier string // free text carrying ISBNs
	Locator    string
}

// Normalize converts a raw record into a canonical catalog.File. The second
// return is false when the record fails the validity gate and must be
// dropped from aggregation.
func (r Record) Normalize(mirror, site string) (catalog.File, bool) {
	switch r.Kind {
	case KindAPIBook:
		if r.APIBook == nil {
			return catalog.File{}, false
		}
		return r.APIBook.normalize(mirror, site)
	case KindSearchRow:
		if r.SearchRow == nil {
			return catalog.File{}, false
		}
		return r.SearchRow.normalize(mirror, site)
	default:
		return catalog.File{}, false
	}
}

func (b *APIBook) normalize(mirror, site string) (catalog.File, bool) {
	locator := b.Locator
	if locator == "" {
		locator = b.Title + "." + b.Extension
	}
	parsed := extract.ParseLocator(locator, b.Author)

	title := firstNonSentinel(b.Title, parsed.Title)
	author := firstNonSentinel(b.Author, parsed.Author)
	ext := strings.ToLower(firstNonSentinel(b.Extension, parsed.Extension))

	if !extract.Valid(title, author, ext, b.Filesize) {
		return catalog.File{}, false
	}

	size, _ := extract.ParseFilesize(b.Filesize)

	return catalog.File{
		ID:         b.ID,
		MD5:        strings.ToLower(b.MD5),
		Extension:  ext,
		Filesize:   size,
		Mirror:     mirror,
		Source:     site,
		Locator:    locator,
		Title:      title,
		Author:     author,
		Year:       firstNonSentinel(b.Year, parsed.Year),
		Publisher:  sentinelBlank(b.Publisher),
		Language:   sentinelBlank(b.Language),
		Pages:      sentinelBlank(b.Pages),
		CoverURL:   b.CoverURL,
		Identifier: b.Identifier,
	}, true
}

func (row *SearchRow) normalize(mirror, site string) (catalog.File, bool) {
	locator := row.Locator
	if locator == "" {
		locator = row.Title + "." + row.Extension
	}
	parsed := extract.ParseLocator(locator, row.Author)

	title := firstNonSentinel(row.Title, parsed.Title)
	author := firstNonSentinel(row.Author, parsed.Author)
	ext := strings.ToLower(firstNonSentinel(row.Extension, parsed.Extension))

	size := parseHumanSize(row.SizeText)
	sizeField := ""
	if size > 0 {
		sizeField = strconv.FormatInt(size, 10)
	}

	if !extract.Valid(title, author, ext, sizeField) {
		return catalog.File{}, false
	}

	return catalog.File{
		ID:         row.ID,
		MD5:        strings.ToLower(row.MD5),
		Extension:  ext,
		Filesize:   size,
		Mirror:     mirror,
		Source:     site,
		Locator:    locator,
		Title:      title,
		Author:     author,
		Year:       firstNonSentinel(row.Year, parsed.Year),
		Publisher:  sentinelBlank(row.Publisher),
		Language:   sentinelBlank(row.Language),
		Pages:      sentinelBlank(row.Pages),
		Identifier: row.Identifier,
	}, true
}

// firstNonSentinel prefers the source-provided value over the parsed guess,
// skipping blanks and placeholder strings.
func firstNonSentinel(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !extract.IsSentinel(v) {
			return v
		}
	}
	return ""
}

func sentinelBlank(v string) string {
	v = strings.TrimSpace(v)
	if extract.IsSentinel(v) {
		return ""
	}
	return v
}

// parseHumanSize converts scraped size text ("1168 Kb", "2 Mb", "734833")
// into bytes. Returns 0 when unparseable.
func parseHumanSize(text string) int64 {
	s := strings.TrimSpace(strings.ToLower(text))
	if s == "" {
		return 0
	}

	fields := strings.Fields(s)
	num, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || num <= 0 {
		return 0
	}

	mult := float64(1)
	if len(fields) > 1 {
		switch fields[1] {
		case "kb":
			mult = 1 << 10
		case "mb":
			mult = 1 << 20
		case "gb":
			mult = 1 << 30
		}
	}

	return int64(num * mult)
}
