package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/extract"
	"github.com/openshelf/openshelf/internal/fetch"
	"github.com/openshelf/openshelf/internal/mirror"
	"github.com/openshelf/openshelf/internal/source"
)

// Mirrors is the mirror access surface the orchestrator needs.
type Mirrors interface {
	Get(ctx context.Context, pathAndQuery string, opts fetch.Options) ([]byte, error)
	Current() string
}

// Aggregator folds normalized files into editions.
type Aggregator interface {
	Aggregate(ctx context.Context, files []catalog.File, onStatus catalog.StatusFunc) []*catalog.Edition
}

// Fetcher is the HTTP primitive for direct (non-mirror) lookups.
type Fetcher interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
}

// Config holds search orchestrator settings.
type Config struct {
	// SearchPath is the mirror search path template; %s receives the
	// URL-escaped query.
	SearchPath string

	// SiteName labels normalized files with their source site.
	SiteName string

	// DOIBaseURL is the bibliographic works API base. Empty disables the
	// metadata decoration of DOI results.
	DOIBaseURL string

	// ArchiveHost is the fallback domain DOI results link into.
	ArchiveHost string
}

// Service is the search orchestrator.
type Service struct {
	cfg        Config
	mirrors    Mirrors
	aggregator Aggregator
	fetcher    Fetcher
	logger     zerolog.Logger
}

// NewService creates a new search service.
func NewService(cfg Config, mirrors Mirrors, aggregator Aggregator, fetcher Fetcher, logger zerolog.Logger) *Service {
	if cfg.SearchPath == "" {
		cfg.SearchPath = "/search.php?req=%s&res=100&view=simple"
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "libgen"
	}

	return &Service{
		cfg:        cfg,
		mirrors:    mirrors,
		aggregator: aggregator,
		fetcher:    fetcher,
		logger:     logger.With().Str("component", "search").Logger(),
	}
}

// Search classifies and runs the query, streaming events as work completes.
// The channel always terminates with EventDone. Searches are not cancelled
// mid-flight by design; a new search simply supersedes the old stream.
func (s *Service) Search(ctx context.Context, query string) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)
		defer func() { events <- Event{Type: EventDone} }()

		query = strings.TrimSpace(query)
		if query == "" {
			events <- Event{Type: EventError, Message: "empty query"}
			return
		}

		if IsDOI(query) {
			s.runDOI(ctx, doiPattern.FindString(query), events)
			return
		}
		s.runMirrorSearch(ctx, query, events)
	}()

	return events
}

// runDOI bypasses mirror search entirely and returns a single
// bibliographic-API-derived result.
func (s *Service) runDOI(ctx context.Context, doi string, events chan<- Event) {
	events <- Event{Type: EventStatus, Message: "Detected DOI, querying bibliographic API..."}

	record := s.resolveDOI(ctx, doi)
	events <- Event{Type: EventResult, Record: &record}
}

func (s *Service) runMirrorSearch(ctx context.Context, query string, events chan<- Event) {
	events <- Event{Type: EventStatus, Message: "Searching mirrors..."}

	path := fmt.Sprintf(s.cfg.SearchPath, url.QueryEscape(query))
	body, err := s.mirrors.Get(ctx, path, fetch.Options{Kind: fetch.KindHTML, UseCache: true})
	if err != nil {
		// Mirror exhaustion is a real failure, never "no results".
		if errors.Is(err, mirror.ErrAllMirrorsFailed) || errors.Is(err, mirror.ErrNoMirrors) {
			events <- Event{Type: EventError, Message: fmt.Sprintf("All mirrors failed: %v", err)}
			return
		}
		events <- Event{Type: EventError, Message: fmt.Sprintf("Search failed: %v", err)}
		return
	}

	records, err := parseResults(body)
	if err != nil {
		events <- Event{Type: EventError, Message: fmt.Sprintf("Failed to parse results: %v", err)}
		return
	}

	files := make([]catalog.File, 0, len(records))
	for _, record := range records {
		// Records failing the validity gate are dropped, never fatal.
		if file, ok := record.Normalize(s.mirrors.Current(), s.cfg.SiteName); ok {
			files = append(files, file)
		}
	}

	if len(files) == 0 {
		events <- Event{Type: EventStatus, Message: "No results found."}
		return
	}

	editions := s.aggregator.Aggregate(ctx, files, func(msg string) {
		events <- Event{Type: EventStatus, Message: msg}
	})
	s.rank(query, editions)

	for i, edition := range editions {
		events <- Event{Type: EventStatus, Message: fmt.Sprintf("Processing edition %d of %d...", i+1, len(editions))}
		record := edition.ToRecord()
		events <- Event{Type: EventResult, Record: &record}
	}
}

// parseResults dispatches on the payload shape. Mirrors answer the HTML
// search page normally, but some front the JSON metadata endpoint instead.
func parseResults(body []byte) ([]source.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return source.ParseAPIBooks(trimmed)
	}
	return source.ParseSearchRows(body)
}

// rank orders editions by relevance score, best first. Equal scores keep
// their aggregation order.
func (s *Service) rank(query string, editions []*catalog.Edition) {
	scores := make(map[*catalog.Edition]int, len(editions))
	for _, e := range editions {
		altID := ""
		if len(e.Files) > 0 {
			altID = e.Files[0].ID
		}
		scores[e] = extract.Score(query, extract.Candidate{
			Title:  e.Title,
			Author: e.Author,
			ISBNs:  e.ISBNs,
			AltID:  altID,
		})
	}

	sort.SliceStable(editions, func(i, j int) bool {
		return scores[editions[i]] > scores[editions[j]]
	})
}
