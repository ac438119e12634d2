// Package download owns the managed download lifecycle: resolving a direct
// link from a book's mirror-link chain, streaming bytes to disk with
// chunk-cadence progress, and mapping cancellation and stream errors onto
// distinct terminal states.
package download

import (
	"regexp"
	"strings"
	"time"
)

// State is a download item's lifecycle state.
type State string

const (
	StateResolving   State = "resolving"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
	StateBrowser     State = "browser-download"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateBrowser:
		return true
	}
	return false
}

// Progress is the byte-level progress of an active transfer. Total is -1
// when the server did not announce a content length; consumers render an
// indeterminate indicator in that case.
type Progress struct {
	Percent     int   `json:"percent"`
	Transferred int64 `json:"transferred"`
	Total       int64 `json:"total"`
}

// Item is one download attempt. Exactly one terminal state is reached per
// item; a failed mirror means the caller issues a brand-new item for the
// next link, never a retry inside this one.
type Item struct {
	ID          string     `json:"clientId"`
	Title       string     `json:"title"`
	Destination string     `json:"destination"`
	State       State      `json:"state"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	URL         string     `json:"url,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Request describes what to download. Display metadata is used only to
// build the destination filename.
type Request struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Year        string   `json:"year"`
	Language    string   `json:"language"`
	Extension   string   `json:"extension"`
	MirrorLinks []string `json:"mirror_links"`
	DOI         string   `json:"doi,omitempty"`
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\s.-]`)

// Filename renders the destination filename template
// "{title} - {author} ({year}) ({language}).{extension}" with everything
// outside [\w\s.-] stripped.
func (r Request) Filename() string {
	ext := strings.TrimPrefix(r.Extension, ".")
	if ext == "" {
		ext = "bin"
	}
	name := r.Title + " - " + r.Author + " (" + r.Year + ") (" + r.Language + ")"
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), " ")
	return name + "." + ext
}
