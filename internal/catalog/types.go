// Package catalog defines the canonical edition model and the aggregator
// that folds raw scraped files into it.
package catalog

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// File is one retrievable artifact belonging to an Edition. Files never
// outlive their Edition.
type File struct {
	ID         string `json:"fileId"`
	MD5        string `json:"md5,omitempty"`
	Extension  string `json:"extension"`
	Filesize   int64  `json:"filesize"`
	Mirror     string `json:"mirror"`
	Source     string `json:"source"`
	Locator    string `json:"locator"`

	// Source-provided metadata, used to seed Edition fields. Blank values
	// fall back to what the locator parser recovered.
	Title      string `json:"-"`
	Author     string `json:"-"`
	Year       string `json:"-"`
	Publisher  string `json:"-"`
	Language   string `json:"-"`
	Pages      string `json:"-"`
	CoverURL   string `json:"-"`
	Identifier string `json:"-"` // raw identifier text, scanned for ISBNs

	// DownloadLinks is populated lazily during aggregation; empty when
	// link-candidate discovery failed (the file degrades to metadata-only).
	// Clients pass these back as mirror_links on a download request.
	DownloadLinks []string `json:"download_links,omitempty"`
}

// Enrichment holds fields fetched from the bibliographic API, keyed by
// content hash and memoized across files sharing the same hash.
type Enrichment struct {
	Categories  []string `json:"categories,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	PageCount   int      `json:"pageCount,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Edition is the canonical aggregate unit returned to callers. Created per
// search and discarded when a new search begins.
type Edition struct {
	GroupKey  string   `json:"id"`
	ISBNs     []string `json:"isbn,omitempty"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Year      string   `json:"year,omitempty"`
	Publisher string   `json:"publisher,omitempty"`
	Language  string   `json:"language,omitempty"`
	Pages     string   `json:"pages,omitempty"`
	CoverURL  string   `json:"cover_url,omitempty"`
	Files     []File   `json:"files"`

	Enrichment
}

// Record is the outbound per-edition shape emitted incrementally to callers.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Publisher   string   `json:"publisher,omitempty"`
	Year        string   `json:"year,omitempty"`
	Language    string   `json:"language,omitempty"`
	Pages       string   `json:"pages,omitempty"`
	Size        string   `json:"size,omitempty"`
	Extension   string   `json:"extension,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Description string   `json:"description,omitempty"`
	ISBN        string   `json:"isbn,omitempty"`
	Files       []File   `json:"files"`
	FileCount   int      `json:"file_count"`
	Source      string   `json:"source,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	PageCount   int      `json:"page_count,omitempty"`
}

// ToRecord flattens an Edition into the outbound record, rendering the size
// of the first file as a human-readable string.
func (e *Edition) ToRecord() Record {
	rec := Record{
		ID:          e.GroupKey,
		Title:       e.Title,
		Author:      e.Author,
		Publisher:   e.Publisher,
		Year:        e.Year,
		Language:    e.Language,
		Pages:       e.Pages,
		CoverURL:    e.CoverURL,
		Description: e.Description,
		ISBN:        strings.Join(e.ISBNs, ", "),
		Files:       e.Files,
		FileCount:   len(e.Files),
		Categories:  e.Categories,
		Rating:      e.Rating,
		Thumbnail:   e.Thumbnail,
		PageCount:   e.PageCount,
	}

	if len(e.Files) > 0 {
		first := e.Files[0]
		rec.Extension = first.Extension
		rec.Source = first.Source
		if first.Filesize > 0 {
			rec.Size = humanize.Bytes(uint64(first.Filesize))
		}
	}

	return rec
}
