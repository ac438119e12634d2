package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when an item id is unknown.
var ErrNotFound = errors.New("download item not found")

// LinkResolver resolves a source page URL into a verified direct link.
type LinkResolver interface {
	Resolve(ctx context.Context, pageURL string) (string, error)
}

// Streamer opens a raw byte stream for a direct link.
type Streamer interface {
	Stream(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Broadcaster pushes typed events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Recorder persists item creation and terminal transitions.
type Recorder interface {
	Created(ctx context.Context, item Item) error
	Finished(ctx context.Context, id string, state State, errMsg string) error
}

// Config holds download service settings.
type Config struct {
	// Dir is the destination directory for completed files.
	Dir string

	// ArchiveHost builds the archive candidate for DOI-only requests.
	ArchiveHost string

	// BrowserPatterns flag resolved links that are better handled by the
	// user's own browser (slow or ad-supported paths).
	BrowserPatterns []string

	// OpenURL hands a link to the OS default handler. Defaults to the
	// platform open command.
	OpenURL func(url string) error
}

// Service is the download orchestrator. Safe for concurrent use.
type Service struct {
	cfg         Config
	resolver    LinkResolver
	streamer    Streamer
	broadcaster Broadcaster
	recorder    Recorder
	logger      zerolog.Logger

	mu      sync.Mutex
	items   map[string]*Item
	order   []string
	cancels map[string]context.CancelFunc
}

// NewService creates a new download service. broadcaster and recorder may be
// nil.
func NewService(cfg Config, resolver LinkResolver, streamer Streamer, broadcaster Broadcaster, recorder Recorder, logger zerolog.Logger) *Service {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if len(cfg.BrowserPatterns) == 0 {
		cfg.BrowserPatterns = []string{"/slow_download/", "slow.php"}
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = openBrowser
	}

	return &Service{
		cfg:         cfg,
		resolver:    resolver,
		streamer:    streamer,
		broadcaster: broadcaster,
		recorder:    recorder,
		logger:      logger.With().Str("component", "download").Logger(),
		items:       make(map[string]*Item),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Start creates a DownloadItem in the resolving state and launches its
// pipeline. The returned snapshot reflects the initial state. A request may
// carry mirror links, a DOI, or both; a bare DOI resolves through the
// archive's scidb page.
func (s *Service) Start(req Request) (Item, error) {
	if len(req.MirrorLinks) == 0 && req.DOI != "" && s.cfg.ArchiveHost != "" {
		req.MirrorLinks = []string{s.cfg.ArchiveHost + "/scidb/" + req.DOI}
	}
	if len(req.MirrorLinks) == 0 {
		return Item{}, errors.New("download request carries no mirror links or doi")
	}

	item := &Item{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Destination: filepath.Join(s.cfg.Dir, req.Filename()),
		State:       StateResolving,
		Progress:    Progress{Total: -1},
		StartedAt:   time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	s.cancels[item.ID] = cancel
	snapshot := *item
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Created(context.Background(), snapshot); err != nil {
			s.logger.Warn().Err(err).Str("id", item.ID).Msg("failed to record download start")
		}
	}

	s.broadcastList()
	go s.run(ctx, item.ID, req)

	return snapshot, nil
}

// Cancel requests cooperative cancellation. The active stream is destroyed
// and the pipeline observes the resulting error as cancelled, not failed.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	cancel()
	return nil
}

// Get returns a snapshot of one item.
func (s *Service) Get(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return *item, nil
}

// List returns snapshots of all items in creation order.
func (s *Service) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, *s.items[id])
	}
	return list
}

func (s *Service) run(ctx context.Context, id string, req Request) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
	}()

	link, err := s.resolveChain(ctx, req)
	if err != nil {
		s.finish(id, terminalFor(ctx, err), err)
		return
	}

	if s.isBrowserLink(link) {
		s.logger.Info().Str("id", id).Str("url", link).Msg("handing link to browser")
		if err := s.cfg.OpenURL(link); err != nil {
			s.finish(id, StateFailed, fmt.Errorf("failed to open browser: %w", err))
			return
		}
		s.setURL(id, link)
		s.finish(id, StateBrowser, nil)
		return
	}

	if err := s.stream(ctx, id, link); err != nil {
		s.finish(id, terminalFor(ctx, err), err)
		return
	}
	s.finish(id, StateCompleted, nil)
}

// resolveChain walks the mirror-link chain and returns the first link that
// resolves and verifies. A rejected link is skipped, never fatal on its own.
func (s *Service) resolveChain(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for i, pageURL := range req.MirrorLinks {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		link, err := s.resolver.Resolve(ctx, pageURL)
		if err != nil {
			lastErr = err
			s.logger.Debug().Str("page", pageURL).Int("position", i+1).Err(err).Msg("mirror link did not resolve")
			continue
		}
		return link, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no mirror links provided")
	}
	return "", fmt.Errorf("download link chain exhausted: %w", lastErr)
}

// stream transfers the body to the destination file, emitting progress at
// the transport's natural chunk cadence.
func (s *Service) stream(ctx context.Context, id, link string) error {
	body, total, err := s.streamer.Stream(ctx, link)
	if err != nil {
		return err
	}
	defer body.Close()

	s.transition(id, StateDownloading, func(item *Item) {
		item.URL = link
		item.Progress = Progress{Total: total}
	})

	dest := s.destinationOf(id)
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	buf := make([]byte, 64*1024)
	var transferred int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write %s: %w", dest, writeErr)
			}
			transferred += int64(n)
			s.emitProgress(id, transferred, total)
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (s *Service) emitProgress(id string, transferred, total int64) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.State != StateDownloading {
		s.mu.Unlock()
		return
	}

	progress := Progress{Transferred: transferred, Total: total}
	if total > 0 {
		progress.Percent = int(transferred * 100 / total)
	}
	item.Progress = progress
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.Broadcast("download:progress", map[string]interface{}{
			"clientId": id,
			"progress": progress,
		})
	}
}

func (s *Service) transition(id string, state State, mutate func(*Item)) {
	s.mu.Lock()
	if item, ok := s.items[id]; ok && !item.State.Terminal() {
		item.State = state
		if mutate != nil {
			mutate(item)
		}
	}
	s.mu.Unlock()

	s.broadcastList()
}

// finish moves the item to its single terminal state.
func (s *Service) finish(id string, state State, cause error) {
	now := time.Now()
	errMsg := ""
	if cause != nil && state != StateCancelled {
		errMsg = cause.Error()
	}

	s.mu.Lock()
	item, ok := s.items[id]
	if !ok || item.State.Terminal() {
		s.mu.Unlock()
		return
	}
	item.State = state
	item.Error = errMsg
	item.FinishedAt = &now
	s.mu.Unlock()

	switch state {
	case StateCompleted, StateBrowser:
		s.logger.Info().Str("id", id).Str("state", string(state)).Msg("download finished")
	default:
		s.logger.Warn().Str("id", id).Str("state", string(state)).Str("error", errMsg).Msg("download did not complete")
	}

	if s.recorder != nil {
		if err := s.recorder.Finished(context.Background(), id, state, errMsg); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("failed to record download finish")
		}
	}

	s.broadcastList()
}

func (s *Service) broadcastList() {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast("download:list", s.List())
}

func (s *Service) setURL(id, link string) {
	s.mu.Lock()
	if item, ok := s.items[id]; ok {
		item.URL = link
	}
	s.mu.Unlock()
}

func (s *Service) destinationOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		return item.Destination
	}
	return ""
}

func (s *Service) isBrowserLink(link string) bool {
	for _, pattern := range s.cfg.BrowserPatterns {
		if pattern != "" && strings.Contains(link, pattern) {
			return true
		}
	}
	return false
}

// terminalFor maps a pipeline error to its terminal state. Cooperative
// cancellation surfaces as a context error and must never read as failed.
func terminalFor(ctx context.Context, err error) State {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return StateCancelled
	}
	return StateFailed
}
