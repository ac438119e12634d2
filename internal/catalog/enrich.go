package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/fetch"
)

// Enricher looks up bibliographic enrichment for an edition candidate.
type Enricher interface {
	Lookup(ctx context.Context, isbn, title, author string) (*Enrichment, error)
}

// BooksAPIClient fetches enrichment from a Google-Books-compatible volumes
// endpoint.
type BooksAPIClient struct {
	baseURL string
	fetcher Fetcher
	logger  zerolog.Logger
}

// Fetcher is the HTTP primitive used for enrichment lookups.
type Fetcher interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
}

// NewBooksAPIClient creates a bibliographic API client.
func NewBooksAPIClient(baseURL string, fetcher Fetcher, logger zerolog.Logger) *BooksAPIClient {
	return &BooksAPIClient{
		baseURL: baseURL,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "enrich").Logger(),
	}
}

// volumesResponse is the subset of the volumes payload we consume.
type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Description   string   `json:"description"`
			Categories    []string `json:"categories"`
			AverageRating float64  `json:"averageRating"`
			PageCount     int      `json:"pageCount"`
			ImageLinks    struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Lookup queries by ISBN when available, falling back to a title+author
// query. A miss returns (nil, nil); only transport and decode problems are
// errors.
func (c *BooksAPIClient) Lookup(ctx context.Context, isbn, title, author string) (*Enrichment, error) {
	query := ""
	switch {
	case isbn != "":
		query = "isbn:" + isbn
	case title != "":
		query = "intitle:" + title
		if author != "" {
			query += "+inauthor:" + author
		}
	default:
		return nil, nil
	}

	lookupURL := fmt.Sprintf("%s/volumes?q=%s&maxResults=1", c.baseURL, url.QueryEscape(query))

	body, err := c.fetcher.Get(ctx, lookupURL, fetch.Options{Kind: fetch.KindJSON, UseCache: true})
	if err != nil {
		return nil, fmt.Errorf("enrichment lookup failed: %w", err)
	}

	var resp volumesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment payload: %w", err)
	}

	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		c.logger.Debug().Str("query", query).Msg("no enrichment match")
		return nil, nil
	}

	info := resp.Items[0].VolumeInfo
	return &Enrichment{
		Categories:  info.Categories,
		Rating:      info.AverageRating,
		Thumbnail:   info.ImageLinks.Thumbnail,
		PageCount:   info.PageCount,
		Description: info.Description,
	}, nil
}
