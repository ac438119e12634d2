// Package search orchestrates a query end to end: DOI classification,
// mirror search, normalization, aggregation, and streaming emission of
// editions over a typed event channel.
package search

import "github.com/openshelf/openshelf/internal/catalog"

// EventType discriminates the events a search produces.
type EventType string

const (
	// EventStatus carries human-readable progress narration.
	EventStatus EventType = "status"
	// EventResult carries one completed edition record.
	EventResult EventType = "result"
	// EventError carries a user-visible failure, such as mirror exhaustion.
	EventError EventType = "error"
	// EventDone marks the end of the stream; always the final event.
	EventDone EventType = "done"
)

// Event is one element of a search's event stream.
type Event struct {
	Type    EventType       `json:"type"`
	Message string          `json:"message,omitempty"`
	Record  *catalog.Record `json:"record,omitempty"`
}
