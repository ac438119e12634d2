package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/extract"
)

// StatusFunc receives human-readable progress narration during aggregation.
type StatusFunc func(message string)

// AggregatorConfig holds the aggregator settings.
type AggregatorConfig struct {
	// PoolWidth bounds the number of concurrent per-file preparation
	// workers (link candidates plus enrichment).
	PoolWidth int

	// SecondaryHost is the hash-routed fallback host for link candidates.
	SecondaryHost string

	// ArchiveHost is the external archive host for link candidates.
	ArchiveHost string
}

// Aggregator folds raw files into Editions. Grouping is by shared ISBN when
// any is present, otherwise by normalized title|author|year. Enrichment
// lookups are memoized by content hash for the life of the process.
type Aggregator struct {
	cfg      AggregatorConfig
	enricher Enricher
	logger   zerolog.Logger

	mu          sync.Mutex
	enrichments map[string]*Enrichment
}

// NewAggregator creates a new edition aggregator. enricher may be nil, in
// which case editions carry no enrichment.
func NewAggregator(cfg AggregatorConfig, enricher Enricher, logger zerolog.Logger) *Aggregator {
	if cfg.PoolWidth <= 0 {
		cfg.PoolWidth = 5
	}
	return &Aggregator{
		cfg:         cfg,
		enricher:    enricher,
		logger:      logger.With().Str("component", "aggregator").Logger(),
		enrichments: make(map[string]*Enrichment),
	}
}

// Aggregate prepares every file through a bounded worker pool and then folds
// them into editions in first-seen order. A per-file preparation failure
// degrades that file to metadata-only; it never fails the batch.
func (a *Aggregator) Aggregate(ctx context.Context, files []File, onStatus StatusFunc) []*Edition {
	if len(files) == 0 {
		return nil
	}

	a.prepare(ctx, files, onStatus)
	return a.group(files)
}

// prepare runs link-candidate construction and enrichment for each file.
// Files are mutated in place.
func (a *Aggregator) prepare(ctx context.Context, files []File, onStatus StatusFunc) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < a.cfg.PoolWidth; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if onStatus != nil {
					onStatus(fmt.Sprintf("Processing file %d of %d...", idx+1, len(files)))
				}
				a.prepareFile(ctx, &files[idx])
			}
		}()
	}

	for idx := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
}

func (a *Aggregator) prepareFile(ctx context.Context, file *File) {
	file.DownloadLinks = a.linkCandidates(file)

	if a.enricher == nil || file.MD5 == "" {
		return
	}

	// Check and reserve under one lock so concurrent workers holding the
	// same hash do not race into duplicate lookups. A nil reservation reads
	// as "no enrichment" until the lookup lands.
	a.mu.Lock()
	_, seen := a.enrichments[file.MD5]
	if !seen {
		a.enrichments[file.MD5] = nil
	}
	a.mu.Unlock()
	if seen {
		return
	}

	isbn := ""
	if isbns := extract.ISBNs(file.Identifier); len(isbns) > 0 {
		isbn = isbns[0]
	}

	enrichment, err := a.enricher.Lookup(ctx, isbn, file.Title, file.Author)
	a.mu.Lock()
	if err != nil {
		// Release the reservation so a later batch can retry, and degrade
		// this file to metadata-only rather than failing the batch.
		delete(a.enrichments, file.MD5)
		a.mu.Unlock()
		a.logger.Warn().Err(err).Str("md5", file.MD5).Msg("enrichment failed, continuing without it")
		return
	}
	a.enrichments[file.MD5] = enrichment
	a.mu.Unlock()
}

// linkCandidates builds the download-link candidate list from the file's
// content hash and the configured hosts. Order mirrors resolution priority.
func (a *Aggregator) linkCandidates(file *File) []string {
	if file.MD5 == "" {
		return nil
	}

	var links []string
	if file.Mirror != "" {
		links = append(links, file.Mirror+"/ads.php?md5="+file.MD5)
	}
	if a.cfg.SecondaryHost != "" {
		links = append(links, a.cfg.SecondaryHost+"/ads.php?md5="+file.MD5)
	}
	if a.cfg.ArchiveHost != "" {
		links = append(links, a.cfg.ArchiveHost+"/md5/"+file.MD5)
	}
	return links
}

// group folds prepared files into editions. Two files sharing any ISBN merge
// into the same edition, transitively: a file whose ISBN set spans several
// existing editions collapses them into one. Files without ISBNs merge on
// identical normalized title|author|year. Edition order and group keys are
// stable for the batch.
func (a *Aggregator) group(files []File) []*Edition {
	var editions []*Edition
	byISBN := make(map[string]*Edition)
	byComposite := make(map[string]*Edition)

	for i := range files {
		file := files[i]
		isbns := extract.ISBNs(file.Identifier)

		var matched []*Edition
		for _, isbn := range isbns {
			if existing, ok := byISBN[isbn]; ok && !containsEdition(matched, existing) {
				matched = append(matched, existing)
			}
		}

		var edition *Edition
		switch {
		case len(matched) > 0:
			edition = matched[0]
			for _, other := range matched[1:] {
				mergeEditions(edition, other, byISBN)
				editions = removeEdition(editions, other)
			}
			mergeMetadata(edition, file)
		case len(isbns) == 0:
			if edition = byComposite[compositeKey(file)]; edition != nil {
				mergeMetadata(edition, file)
			}
		}

		if edition == nil {
			edition = a.newEdition(file, isbns)
			editions = append(editions, edition)
			if len(isbns) == 0 {
				byComposite[compositeKey(file)] = edition
			}
		}

		for _, isbn := range isbns {
			byISBN[isbn] = edition
			if !containsString(edition.ISBNs, isbn) {
				edition.ISBNs = append(edition.ISBNs, isbn)
			}
		}

		edition.Files = append(edition.Files, file)
		a.applyEnrichment(edition, file.MD5)
	}

	return editions
}

// mergeEditions folds src into dst: files, ISBN claims, metadata blanks, and
// enrichment when dst has none.
func mergeEditions(dst, src *Edition, byISBN map[string]*Edition) {
	dst.Files = append(dst.Files, src.Files...)
	for _, isbn := range src.ISBNs {
		byISBN[isbn] = dst
		if !containsString(dst.ISBNs, isbn) {
			dst.ISBNs = append(dst.ISBNs, isbn)
		}
	}

	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Author == "" {
		dst.Author = src.Author
	}
	if dst.Year == "" {
		dst.Year = src.Year
	}
	if dst.Publisher == "" {
		dst.Publisher = src.Publisher
	}
	if dst.Language == "" {
		dst.Language = src.Language
	}
	if dst.Pages == "" {
		dst.Pages = src.Pages
	}
	if dst.CoverURL == "" {
		dst.CoverURL = src.CoverURL
	}
	if dst.Description == "" && dst.PageCount == 0 && dst.Rating == 0 &&
		dst.Thumbnail == "" && len(dst.Categories) == 0 {
		dst.Enrichment = src.Enrichment
	}
}

func removeEdition(editions []*Edition, target *Edition) []*Edition {
	kept := editions[:0]
	for _, e := range editions {
		if e != target {
			kept = append(kept, e)
		}
	}
	return kept
}

func containsEdition(list []*Edition, e *Edition) bool {
	for _, existing := range list {
		if existing == e {
			return true
		}
	}
	return false
}

func (a *Aggregator) newEdition(file File, isbns []string) *Edition {
	key := strings.Join(isbns, ",")
	if key == "" {
		key = compositeKey(file)
	}
	return &Edition{
		GroupKey:  key,
		Title:     file.Title,
		Author:    file.Author,
		Year:      file.Year,
		Publisher: file.Publisher,
		Language:  file.Language,
		Pages:     file.Pages,
		CoverURL:  file.CoverURL,
	}
}

// mergeMetadata fills edition fields that are still blank; the first file to
// provide a value wins.
func mergeMetadata(edition *Edition, file File) {
	if edition.Title == "" {
		edition.Title = file.Title
	}
	if edition.Author == "" {
		edition.Author = file.Author
	}
	if edition.Year == "" {
		edition.Year = file.Year
	}
	if edition.Publisher == "" {
		edition.Publisher = file.Publisher
	}
	if edition.Language == "" {
		edition.Language = file.Language
	}
	if edition.Pages == "" {
		edition.Pages = file.Pages
	}
	if edition.CoverURL == "" {
		edition.CoverURL = file.CoverURL
	}
}

func (a *Aggregator) applyEnrichment(edition *Edition, md5 string) {
	if md5 == "" || edition.Description != "" || edition.PageCount > 0 ||
		edition.Rating > 0 || edition.Thumbnail != "" || len(edition.Categories) > 0 {
		return
	}

	a.mu.Lock()
	enrichment := a.enrichments[md5]
	a.mu.Unlock()

	if enrichment != nil {
		edition.Enrichment = *enrichment
	}
}

// compositeKey builds the fallback grouping key for files without ISBNs.
func compositeKey(file File) string {
	return normalizeKeyPart(file.Title) + "|" + normalizeKeyPart(file.Author) + "|" + strings.TrimSpace(file.Year)
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
