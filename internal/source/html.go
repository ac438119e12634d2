package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Search result tables put one file per row. Column order is stable across
// the mirrors we target even when surrounding chrome differs:
// id | author | title | publisher | year | pages | language | size | ext | mirrors
const (
	colID = iota
	colAuthor
	colTitle
	colPublisher
	colYear
	colPages
	colLanguage
	colSize
	colExtension
)

// ParseSearchRows extracts raw search rows from a mirror's HTML results
// page. Rows missing a title anchor are skipped; validation happens later
// at the normalization step.
func ParseSearchRows(html []byte) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	var records []Record

	doc.Find("table.c tr, table.catalog tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() <= colExtension {
			return // header or malformed row
		}

		titleCell := cells.Eq(colTitle)
		anchor := titleCell.Find("a[href]").First()
		if anchor.Length() == 0 {
			return
		}

		href, _ := anchor.Attr("href")

		row := &SearchRow{
			ID:        cellText(cells.Eq(colID)),
			Author:    cellText(cells.Eq(colAuthor)),
			Publisher: cellText(cells.Eq(colPublisher)),
			Year:      cellText(cells.Eq(colYear)),
			Pages:     cellText(cells.Eq(colPages)),
			Language:  cellText(cells.Eq(colLanguage)),
			SizeText:  cellText(cells.Eq(colSize)),
			Extension: strings.ToLower(cellText(cells.Eq(colExtension))),
			MD5:       md5FromHref(href),
		}

		// The title anchor text is the title; trailing <i> elements carry
		// ISBN blocks and edition notes.
		titleClone := anchor.Clone()
		titleClone.Find("i").Remove()
		row.Title = strings.TrimSpace(titleClone.Text())
		row.Identifier = strings.TrimSpace(titleCell.Find("i").Text())

		records = append(records, Record{Kind: KindSearchRow, SearchRow: row})
	})

	return records, nil
}

func cellText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// md5FromHref pulls the content hash out of a title anchor. The mirrors use
// either an md5 query parameter or an /md5/<hash> path segment.
func md5FromHref(href string) string {
	if href == "" {
		return ""
	}

	if u, err := url.Parse(href); err == nil {
		if md5 := u.Query().Get("md5"); md5 != "" {
			return strings.ToLower(md5)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i, part := range parts {
			if part == "md5" && i+1 < len(parts) {
				return strings.ToLower(parts[i+1])
			}
		}
	}

	return ""
}
