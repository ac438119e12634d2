// Package resolver turns source-site page URLs into direct download links.
// Each source shape (ad-gate page, hash-routed secondary domain, generic
// mirror page, external archive page) has its own adapter; every candidate
// is HEAD-verified before being handed to the download orchestrator.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/fetch"
)

// ErrNoDirectLink is returned when no candidate on a page survives
// extraction and verification.
var ErrNoDirectLink = errors.New("no direct download link found")

// downloadishPattern matches hrefs that plausibly point at a file rather
// than another navigation page.
var downloadishPattern = regexp.MustCompile(`(?i)(download|get\.php|dl\.php)`)

// Fetcher is the HTTP primitive used for page fetches and verification.
type Fetcher interface {
	Get(ctx context.Context, url string, opts fetch.Options) ([]byte, error)
	Head(ctx context.Context, url string) (http.Header, error)
}

// MirrorClient fetches a path+query through the mirror access manager, so
// mirror substitution applies to generic mirror pages.
type MirrorClient interface {
	Get(ctx context.Context, pathAndQuery string, opts fetch.Options) ([]byte, error)
	Current() string
}

// Config holds resolver settings.
type Config struct {
	// SecondaryHost is the hash-routed fallback domain.
	SecondaryHost string

	// ArchiveHost is the external archive base domain.
	ArchiveHost string

	// DumpDir receives raw page-body dumps for post-hoc debugging. Empty
	// means the OS temp directory.
	DumpDir string
}

// Resolver resolves page URLs to verified direct links. Stateless across
// calls; safe for concurrent use.
type Resolver struct {
	cfg     Config
	fetcher Fetcher
	mirrors MirrorClient
	logger  zerolog.Logger
}

// NewResolver creates a new link resolver.
func NewResolver(cfg Config, fetcher Fetcher, mirrors MirrorClient, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		mirrors: mirrors,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve extracts direct-link candidates from pageURL and returns the first
// one that verifies as a non-HTML response.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	candidates, err := r.directCandidates(ctx, pageURL)
	if err != nil {
		return "", err
	}

	for _, candidate := range candidates {
		if err := r.Verify(ctx, candidate); err != nil {
			r.logger.Debug().Str("candidate", candidate).Err(err).Msg("candidate rejected")
			continue
		}
		return candidate, nil
	}

	return "", ErrNoDirectLink
}

// directCandidates dispatches on the page shape and returns raw candidates
// in priority order.
func (r *Resolver) directCandidates(ctx context.Context, pageURL string) ([]string, error) {
	switch {
	case strings.Contains(pageURL, "ads.php"):
		link, err := r.adGateLink(ctx, pageURL)
		if err == nil {
			return []string{link}, nil
		}
		// The hash-routed secondary domain has a static tertiary path we
		// can fall back to when its ad gate is missing or broken.
		if r.isSecondary(pageURL) {
			if hash := md5Param(pageURL); hash != "" {
				r.logger.Debug().Str("md5", hash).Msg("ad gate failed, trying static secondary path")
				return []string{r.cfg.SecondaryHost + "/main/" + hash}, nil
			}
		}
		return nil, err

	case r.cfg.ArchiveHost != "" && strings.HasPrefix(pageURL, r.cfg.ArchiveHost):
		link, err := r.archiveLink(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return []string{link}, nil

	default:
		return r.mirrorPageCandidates(ctx, pageURL)
	}
}

// adGateLink fetches an ad-gate page and extracts the signed download
// anchor, joined against the page's own base.
func (r *Resolver) adGateLink(ctx context.Context, pageURL string) (string, error) {
	body, err := r.fetcher.Get(ctx, pageURL, fetch.Options{Kind: fetch.KindHTML})
	if err != nil {
		return "", fmt.Errorf("failed to fetch ad-gate page: %w", err)
	}
	r.dump("adgate", body)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse ad-gate page: %w", err)
	}

	var signed string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.Contains(href, "get.php") && strings.Contains(href, "key=") {
			signed = href
			return false
		}
		return true
	})

	if signed == "" {
		return "", ErrNoDirectLink
	}
	return resolveRef(pageURL, signed), nil
}

// mirrorPageCandidates fetches a generic mirror page through the access
// manager and collects download candidates. A literal "GET" anchor wins;
// otherwise every download-ish href is a candidate.
func (r *Resolver) mirrorPageCandidates(ctx context.Context, pageURL string) ([]string, error) {
	body, err := r.mirrors.Get(ctx, pathAndQuery(pageURL), fetch.Options{Kind: fetch.KindHTML})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mirror page: %w", err)
	}
	r.dump("mirror-page", body)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse mirror page: %w", err)
	}

	base := r.mirrors.Current()

	var direct string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(strings.TrimSpace(s.Text()), "GET") {
			href, _ := s.Attr("href")
			direct = resolveRef(base+"/", href)
			return false
		}
		return true
	})
	if direct != "" {
		return []string{direct}, nil
	}

	var candidates []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if downloadishPattern.MatchString(href) {
			candidates = append(candidates, resolveRef(base+"/", href))
		}
	})

	if len(candidates) == 0 {
		return nil, ErrNoDirectLink
	}
	return candidates, nil
}

// archiveLink fetches an external archive page and extracts its download
// anchor. Hash-routed pages carry the content hash in the anchor path; pages
// without a hash in the URL (scidb DOI viewers) carry an explicit download
// link instead.
func (r *Resolver) archiveLink(ctx context.Context, pageURL string) (string, error) {
	body, err := r.fetcher.Get(ctx, pageURL, fetch.Options{Kind: fetch.KindHTML})
	if err != nil {
		return "", fmt.Errorf("failed to fetch archive page: %w", err)
	}
	r.dump("archive", body)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse archive page: %w", err)
	}

	var link string
	if hash := archiveHash(pageURL); hash != "" {
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			trimmed := strings.TrimPrefix(href, "/")
			if strings.HasPrefix(trimmed, hash) && trimmed != pathAndQuery(pageURL) {
				link = r.cfg.ArchiveHost + "/" + trimmed
				return false
			}
			return true
		})
	} else {
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if downloadishPattern.MatchString(href) || strings.HasSuffix(href, ".pdf") {
				link = resolveRef(pageURL, href)
				return false
			}
			return true
		})
	}

	if link == "" {
		return "", ErrNoDirectLink
	}
	return link, nil
}

// Verify issues a HEAD request and rejects candidates that serve HTML; those
// are gate pages, not files.
func (r *Resolver) Verify(ctx context.Context, link string) error {
	headers, err := r.fetcher.Head(ctx, link)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}

	contentType := strings.ToLower(headers.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") {
		return fmt.Errorf("candidate served %s, treating as gate page", contentType)
	}
	return nil
}

func (r *Resolver) isSecondary(pageURL string) bool {
	return r.cfg.SecondaryHost != "" && strings.HasPrefix(pageURL, r.cfg.SecondaryHost)
}

// md5Param extracts the md5 query parameter from a page URL.
func md5Param(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("md5")
}

// archiveHash extracts the content hash from an archive page path like
// /md5/<hash>.
func archiveHash(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "md5" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// pathAndQuery strips the scheme and host so the access manager can apply
// its own mirror base.
func pathAndQuery(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	return u.RequestURI()
}

// resolveRef joins a possibly relative href against a base URL.
func resolveRef(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
