// Package mirror implements the mirror access manager: an ordered list of
// base URLs with a memoized last-successful mirror, strict ordered fallback,
// and a connectivity probe.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/fetch"
)

// ErrAllMirrorsFailed is returned when every mirror in the list failed. The
// wrapped message carries the last concrete error text.
var ErrAllMirrorsFailed = errors.New("all mirrors failed")

// ErrNoMirrors is returned when the mirror list is empty.
var ErrNoMirrors = errors.New("no mirrors configured")

// Fetcher is the HTTP primitive the manager issues requests through.
// Retry/backoff lives there, not here: the manager tries each mirror exactly
// once per scan.
type Fetcher interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
	Head(ctx context.Context, url string) (http.Header, error)
}

// Status is the management surface snapshot.
type Status struct {
	Mirrors   []string `json:"mirrors"`
	Current   string   `json:"current,omitempty"`
	LastError string   `json:"lastError,omitempty"`
}

// ProbeResult reports one mirror's connectivity check.
type ProbeResult struct {
	Mirror string `json:"mirror"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Manager tracks the ordered mirror list and the last mirror that worked.
// Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	mirrors []string // insertion order = priority
	current string   // last successful mirror, "" when none
	lastErr string

	fetcher Fetcher
	logger  zerolog.Logger
}

// NewManager creates a manager over the given ordered mirror list.
func NewManager(mirrors []string, fetcher Fetcher, logger zerolog.Logger) *Manager {
	cleaned := make([]string, 0, len(mirrors))
	for _, m := range mirrors {
		if m = normalizeBase(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}

	return &Manager{
		mirrors: cleaned,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "mirror").Logger(),
	}
}

// Get fetches path (joined to a mirror base) and returns the first
// successful body. The memoized last-successful mirror is tried first; on
// its failure the memo is cleared and the full ordered list is scanned, each
// mirror exactly once, short-circuiting on the first success.
func (m *Manager) Get(ctx context.Context, path string, opts fetch.Options) ([]byte, error) {
	m.mu.Lock()
	current := m.current
	mirrors := append([]string(nil), m.mirrors...)
	m.mu.Unlock()

	if len(mirrors) == 0 {
		return nil, ErrNoMirrors
	}

	if current != "" {
		body, err := m.fetcher.Get(ctx, current+path, opts)
		if err == nil {
			return body, nil
		}

		m.logger.Warn().
			Str("mirror", current).
			Str("path", path).
			Err(err).
			Msg("memoized mirror failed, falling back to full scan")

		m.mu.Lock()
		if m.current == current {
			m.current = ""
		}
		m.lastErr = err.Error()
		m.mu.Unlock()
	}

	var lastErr error
	for i, base := range mirrors {
		m.logger.Debug().
			Str("mirror", base).
			Int("position", i+1).
			Int("total", len(mirrors)).
			Msg("trying mirror")

		body, err := m.fetcher.Get(ctx, base+path, opts)
		if err == nil {
			m.mu.Lock()
			m.current = base
			m.lastErr = ""
			m.mu.Unlock()
			return body, nil
		}

		lastErr = err
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
	}

	return nil, fmt.Errorf("%w: %v", ErrAllMirrorsFailed, lastErr)
}

// AddMirror appends a mirror to the end of the priority list.
func (m *Manager) AddMirror(base string) {
	base = normalizeBase(base)
	if base == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.mirrors {
		if existing == base {
			return
		}
	}
	m.mirrors = append(m.mirrors, base)
}

// RemoveMirror deletes a mirror from the list. Removing the memoized mirror
// forces a reset so no stale pointer survives.
func (m *Manager) RemoveMirror(base string) {
	base = normalizeBase(base)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.mirrors[:0]
	for _, existing := range m.mirrors {
		if existing != base {
			kept = append(kept, existing)
		}
	}
	m.mirrors = kept

	if m.current == base {
		m.current = ""
		m.lastErr = ""
	}
}

// Reset clears the memoized mirror and the recorded error.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	m.lastErr = ""
}

// Current returns the memoized mirror, or "" when none is trusted.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// GetStatus returns the management surface snapshot.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Mirrors:   append([]string(nil), m.mirrors...),
		Current:   m.current,
		LastError: m.lastErr,
	}
}

// Probe checks every mirror in order and reports each result. The first
// working mirror becomes the memoized one. The onStatus callback, when
// non-nil, receives human-readable narration for UI display.
func (m *Manager) Probe(ctx context.Context, onStatus func(string)) []ProbeResult {
	m.mu.Lock()
	mirrors := append([]string(nil), m.mirrors...)
	m.mu.Unlock()

	results := make([]ProbeResult, 0, len(mirrors))
	found := false

	for i, base := range mirrors {
		if onStatus != nil {
			onStatus(fmt.Sprintf("Contacting mirror %d/%d...", i+1, len(mirrors)))
		}

		_, err := m.fetcher.Head(ctx, base+"/")
		result := ProbeResult{Mirror: base, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)

		if err == nil && !found {
			found = true
			m.mu.Lock()
			m.current = base
			m.lastErr = ""
			m.mu.Unlock()
		}
	}

	return results
}

func normalizeBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
