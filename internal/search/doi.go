package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/fetch"
)

// doiPattern matches a DOI at the end of the query string.
var doiPattern = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+$`)

// IsDOI reports whether the query is a DOI lookup rather than a free-text
// search.
func IsDOI(query string) bool {
	return doiPattern.MatchString(strings.TrimSpace(query))
}

// worksResponse is the subset of the bibliographic works payload we consume.
type worksResponse struct {
	Message struct {
		Title  []string `json:"title"`
		Author []struct {
			Given  string `json:"given"`
			Family string `json:"family"`
		} `json:"author"`
		Published struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"published"`
		Publisher string `json:"publisher"`
	} `json:"message"`
}

// resolveDOI builds the single direct result for a DOI query. The
// bibliographic lookup only decorates the record; when it fails the result
// still carries the archive link.
func (s *Service) resolveDOI(ctx context.Context, doi string) catalog.Record {
	record := catalog.Record{
		ID:        doi,
		Title:     doi,
		Extension: "pdf",
		Source:    "doi",
		FileCount: 1,
		Files: []catalog.File{{
			ID:            doi,
			Extension:     "pdf",
			Source:        "doi",
			Locator:       doi,
			DownloadLinks: []string{s.cfg.ArchiveHost + "/scidb/" + doi},
		}},
	}

	if s.cfg.DOIBaseURL == "" {
		return record
	}

	body, err := s.fetcher.Get(ctx, s.cfg.DOIBaseURL+"/works/"+doi, fetch.Options{Kind: fetch.KindJSON, UseCache: true})
	if err != nil {
		s.logger.Warn().Err(err).Str("doi", doi).Msg("bibliographic lookup failed, returning bare archive link")
		return record
	}

	var resp worksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		s.logger.Warn().Err(err).Str("doi", doi).Msg("malformed bibliographic payload")
		return record
	}

	if len(resp.Message.Title) > 0 {
		record.Title = resp.Message.Title[0]
	}
	if len(resp.Message.Author) > 0 {
		a := resp.Message.Author[0]
		record.Author = strings.TrimSpace(a.Given + " " + a.Family)
	}
	if parts := resp.Message.Published.DateParts; len(parts) > 0 && len(parts[0]) > 0 {
		record.Year = fmt.Sprintf("%d", parts[0][0])
	}
	record.Publisher = resp.Message.Publisher

	return record
}
