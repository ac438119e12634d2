package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/search"
)

func TestRenderSearch_DrainsStreamAfterError(t *testing.T) {
	events := make(chan search.Event)
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		events <- search.Event{Type: search.EventStatus, Message: "Searching mirrors..."}
		events <- search.Event{Type: search.EventError, Message: "All mirrors failed: timeout"}
		events <- search.Event{Type: search.EventDone}
		close(events)
	}()

	var out, status bytes.Buffer
	err := renderSearch(events, &out, &status, false)
	if err == nil || !strings.Contains(err.Error(), "All mirrors failed") {
		t.Fatalf("renderSearch() error = %v, want mirror failure", err)
	}

	// The producer must have delivered every event, including the terminal
	// one after the error, without blocking.
	select {
	case <-sent:
	default:
		t.Fatal("producer still blocked on the event channel")
	}
}

func TestRenderSearch_PrintsResults(t *testing.T) {
	events := make(chan search.Event, 4)
	events <- search.Event{Type: search.EventStatus, Message: "Searching mirrors..."}
	events <- search.Event{Type: search.EventResult, Record: &catalog.Record{
		Title:     "Warbreaker",
		Author:    "Brandon Sanderson",
		Year:      "2009",
		Extension: "epub",
		Size:      "1.2 MB",
		FileCount: 1,
		ISBN:      "9780765360038",
		Files: []catalog.File{{
			DownloadLinks: []string{"https://books.ms/ads.php?md5=abc"},
		}},
	}}
	events <- search.Event{Type: search.EventDone}
	close(events)

	var out, status bytes.Buffer
	if err := renderSearch(events, &out, &status, true); err != nil {
		t.Fatalf("renderSearch() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Warbreaker", "Brandon Sanderson", "isbn:9780765360038", "https://books.ms/ads.php?md5=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(status.String(), "Searching mirrors...") {
		t.Errorf("status output missing narration, got %q", status.String())
	}
}

func TestRenderSearch_NoResults(t *testing.T) {
	events := make(chan search.Event, 2)
	events <- search.Event{Type: search.EventStatus, Message: "No results found."}
	events <- search.Event{Type: search.EventDone}
	close(events)

	var out, status bytes.Buffer
	if err := renderSearch(events, &out, &status, false); err != nil {
		t.Fatalf("renderSearch() error = %v", err)
	}
	if !strings.Contains(status.String(), "no results") {
		t.Errorf("expected empty-stream notice, got %q", status.String())
	}
}
