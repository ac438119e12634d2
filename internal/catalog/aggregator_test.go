package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeEnricher struct {
	mu      sync.Mutex
	calls   int
	byISBN  map[string]*Enrichment
	failAll bool
	delay   time.Duration
}

func (f *fakeEnricher) Lookup(ctx context.Context, isbn, title, author string) (*Enrichment, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return nil, errors.New("enrichment backend down")
	}
	return f.byISBN[isbn], nil
}

func newTestAggregator(enricher Enricher) *Aggregator {
	return NewAggregator(AggregatorConfig{
		PoolWidth:     2,
		SecondaryHost: "https://books.ms",
		ArchiveHost:   "https://annas-archive.org",
	}, enricher, zerolog.Nop())
}

func TestAggregate_MergesBySharedISBN(t *testing.T) {
	files := []File{
		{ID: "1", MD5: "aaa", Title: "Warbreaker", Author: "Brandon Sanderson", Identifier: "9780765360038", Extension: "epub"},
		{ID: "2", MD5: "bbb", Title: "WARBREAKER", Author: "Sanderson, Brandon", Identifier: "978-0-7653-6003-8", Extension: "pdf"},
	}

	editions := newTestAggregator(nil).Aggregate(context.Background(), files, nil)

	if len(editions) != 1 {
		t.Fatalf("expected 1 edition, got %d", len(editions))
	}
	if len(editions[0].Files) != 2 {
		t.Errorf("expected both files merged, got %d", len(editions[0].Files))
	}
	if editions[0].GroupKey != "9780765360038" {
		t.Errorf("unexpected group key %q", editions[0].GroupKey)
	}
}

func TestAggregate_ISBNSpanCollapsesEditions(t *testing.T) {
	// The third file lists both ISBNs, so the two editions seeded by the
	// first two files must collapse into one.
	files := []File{
		{ID: "1", Title: "Warbreaker", Author: "Brandon Sanderson", Identifier: "9780765360038", Extension: "epub"},
		{ID: "2", Title: "Warbreaker", Author: "Brandon Sanderson", Identifier: "9780441013593", Extension: "pdf"},
		{ID: "3", Title: "Warbreaker", Author: "Brandon Sanderson", Identifier: "9780765360038 9780441013593", Extension: "mobi"},
	}

	editions := newTestAggregator(nil).Aggregate(context.Background(), files, nil)

	if len(editions) != 1 {
		t.Fatalf("files sharing ISBNs split across %d editions", len(editions))
	}
	if len(editions[0].Files) != 3 {
		t.Errorf("expected all 3 files in the merged edition, got %d", len(editions[0].Files))
	}
	for _, isbn := range []string{"9780765360038", "9780441013593"} {
		if !containsString(editions[0].ISBNs, isbn) {
			t.Errorf("merged edition missing isbn %s, have %v", isbn, editions[0].ISBNs)
		}
	}
}

func TestAggregate_CompositeKeyMergesAndSplits(t *testing.T) {
	files := []File{
		{ID: "1", Title: "Dune", Author: "Frank Herbert", Year: "1965", Extension: "epub"},
		{ID: "2", Title: "  dune ", Author: "FRANK  HERBERT", Year: "1965", Extension: "pdf"},
		{ID: "3", Title: "Dune", Author: "Frank Herbert", Year: "1984", Extension: "pdf"},
	}

	editions := newTestAggregator(nil).Aggregate(context.Background(), files, nil)

	if len(editions) != 2 {
		t.Fatalf("expected 2 editions, got %d", len(editions))
	}
	if len(editions[0].Files) != 2 {
		t.Errorf("expected normalized title/author/year to merge, got %d files", len(editions[0].Files))
	}
	if editions[1].Files[0].ID != "3" {
		t.Errorf("expected different year to split off, got file %q", editions[1].Files[0].ID)
	}
}

func TestAggregate_ISBNAndCompositeDoNotCrossMerge(t *testing.T) {
	files := []File{
		{ID: "1", Title: "Dune", Author: "Frank Herbert", Year: "1965", Identifier: "9780441013593"},
		{ID: "2", Title: "Dune", Author: "Frank Herbert", Year: "1965"},
	}

	editions := newTestAggregator(nil).Aggregate(context.Background(), files, nil)

	// File 2 has no ISBN so it groups on the composite key, which is a
	// distinct bucket from the ISBN-keyed edition.
	if len(editions) != 2 {
		t.Fatalf("expected 2 editions, got %d", len(editions))
	}
}

func TestAggregate_LinkCandidates(t *testing.T) {
	files := []File{
		{ID: "1", MD5: "deadbeef", Mirror: "https://libgen.is", Title: "X", Author: "Y"},
		{ID: "2", Title: "No Hash", Author: "Y"},
	}

	editions := newTestAggregator(nil).Aggregate(context.Background(), files, nil)

	var withHash, withoutHash *File
	for _, e := range editions {
		for i := range e.Files {
			switch e.Files[i].ID {
			case "1":
				withHash = &e.Files[i]
			case "2":
				withoutHash = &e.Files[i]
			}
		}
	}

	want := []string{
		"https://libgen.is/ads.php?md5=deadbeef",
		"https://books.ms/ads.php?md5=deadbeef",
		"https://annas-archive.org/md5/deadbeef",
	}
	if len(withHash.DownloadLinks) != len(want) {
		t.Fatalf("unexpected candidates %v", withHash.DownloadLinks)
	}
	for i, link := range want {
		if withHash.DownloadLinks[i] != link {
			t.Errorf("candidate %d = %q, want %q", i, withHash.DownloadLinks[i], link)
		}
	}
	if len(withoutHash.DownloadLinks) != 0 {
		t.Errorf("expected no candidates without a hash, got %v", withoutHash.DownloadLinks)
	}
}

func TestAggregate_EnrichmentMemoizedByHash(t *testing.T) {
	enricher := &fakeEnricher{byISBN: map[string]*Enrichment{
		"9780765360038": {Description: "A standalone epic.", PageCount: 688},
	}}
	agg := newTestAggregator(enricher)

	files := []File{
		{ID: "1", MD5: "samehash", Identifier: "9780765360038", Title: "Warbreaker", Author: "Brandon Sanderson"},
	}
	editions := agg.Aggregate(context.Background(), files, nil)
	if editions[0].Description != "A standalone epic." {
		t.Fatalf("expected enrichment applied, got %+v", editions[0].Enrichment)
	}

	// Same hash in a later batch must not trigger another lookup.
	agg.Aggregate(context.Background(), []File{
		{ID: "2", MD5: "samehash", Identifier: "9780765360038", Title: "Warbreaker", Author: "Brandon Sanderson"},
	}, nil)

	if enricher.calls != 1 {
		t.Errorf("expected 1 enrichment call, got %d", enricher.calls)
	}
}

func TestAggregate_ConcurrentSameHashSingleLookup(t *testing.T) {
	enricher := &fakeEnricher{
		delay: 50 * time.Millisecond,
		byISBN: map[string]*Enrichment{
			"9780765360038": {Description: "A standalone epic."},
		},
	}
	agg := newTestAggregator(enricher)

	// Same hash twice in one batch with pool width 2: both workers pick up
	// the hash at the same time, and only the reservation holder may fetch.
	files := []File{
		{ID: "1", MD5: "samehash", Identifier: "9780765360038", Title: "Warbreaker", Author: "Brandon Sanderson"},
		{ID: "2", MD5: "samehash", Identifier: "9780765360038", Title: "Warbreaker", Author: "Brandon Sanderson"},
	}
	editions := agg.Aggregate(context.Background(), files, nil)

	if enricher.calls != 1 {
		t.Errorf("expected 1 enrichment lookup for the shared hash, got %d", enricher.calls)
	}
	if len(editions) != 1 || editions[0].Description != "A standalone epic." {
		t.Errorf("expected enrichment applied to the merged edition, got %+v", editions)
	}
}

func TestAggregate_EnrichmentFailureDegradesFile(t *testing.T) {
	enricher := &fakeEnricher{failAll: true}

	files := []File{
		{ID: "1", MD5: "aaa", Identifier: "9780765360038", Title: "Warbreaker", Author: "Brandon Sanderson"},
	}
	editions := newTestAggregator(enricher).Aggregate(context.Background(), files, nil)

	if len(editions) != 1 || len(editions[0].Files) != 1 {
		t.Fatalf("expected the file to survive enrichment failure, got %+v", editions)
	}
	if editions[0].Description != "" {
		t.Errorf("expected no enrichment, got %q", editions[0].Description)
	}
}

func TestAggregate_StatusNarration(t *testing.T) {
	var mu sync.Mutex
	var messages []string

	files := []File{
		{ID: "1", Title: "A", Author: "B"},
		{ID: "2", Title: "C", Author: "D"},
		{ID: "3", Title: "E", Author: "F"},
	}
	newTestAggregator(nil).Aggregate(context.Background(), files, func(msg string) {
		mu.Lock()
		messages = append(messages, msg)
		mu.Unlock()
	})

	if len(messages) != 3 {
		t.Fatalf("expected 3 status messages, got %v", messages)
	}
	for _, msg := range messages {
		if !strings.HasPrefix(msg, "Processing file ") || !strings.HasSuffix(msg, " of 3...") {
			t.Errorf("unexpected status message %q", msg)
		}
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	if editions := newTestAggregator(nil).Aggregate(context.Background(), nil, nil); editions != nil {
		t.Errorf("expected nil for empty input, got %v", editions)
	}
}
