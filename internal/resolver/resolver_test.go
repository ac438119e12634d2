package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openshelf/openshelf/internal/fetch"
	"github.com/openshelf/openshelf/internal/mirror"
)

func newTestFetcher() *fetch.Client {
	return fetch.NewClient(fetch.Config{
		Timeout:     5 * time.Second,
		MaxInFlight: 3,
		BackoffBase: time.Millisecond,
	}, zerolog.Nop())
}

func newTestResolver(t *testing.T, cfg Config, mirrors ...string) *Resolver {
	t.Helper()
	cfg.DumpDir = t.TempDir()
	fetcher := newTestFetcher()
	manager := mirror.NewManager(mirrors, fetcher, zerolog.Nop())
	return NewResolver(cfg, fetcher, manager, zerolog.Nop())
}

func TestResolve_AdGatePage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ads.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<a href="/banner">Sponsored</a>
			<a href="get.php?md5=cafebabe&key=SIGNEDKEY">DOWNLOAD</a>
		</body></html>`))
	})
	mux.HandleFunc("/get.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{})
	link, err := r.Resolve(context.Background(), server.URL+"/ads.php?md5=cafebabe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := server.URL + "/get.php?md5=cafebabe&key=SIGNEDKEY"
	if link != want {
		t.Errorf("link = %q, want %q", link, want)
	}
}

func TestResolve_RejectsHTMLCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ads.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="get.php?key=abc">DOWNLOAD</a>`))
	})
	mux.HandleFunc("/get.php", func(w http.ResponseWriter, r *http.Request) {
		// The signed link leads to another gate page, not a file.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{})
	if _, err := r.Resolve(context.Background(), server.URL+"/ads.php?md5=x"); !errors.Is(err, ErrNoDirectLink) {
		t.Fatalf("expected ErrNoDirectLink, got %v", err)
	}
}

func TestResolve_SecondaryFallsBackToStaticPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ads.php", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/main/cafebabe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/epub+zip")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{SecondaryHost: server.URL})
	link, err := r.Resolve(context.Background(), server.URL+"/ads.php?md5=cafebabe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != server.URL+"/main/cafebabe" {
		t.Errorf("unexpected link %q", link)
	}
}

func TestResolve_MirrorPageDirectGETAnchor(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/book/index.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/somewhere">Cover</a>
			<a href="/get.php?key=direct"> GET </a>
		</body></html>`))
	})
	mux.HandleFunc("/get.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{}, server.URL)

	// The original host is substituted by the access manager; only the
	// path and query survive.
	link, err := r.Resolve(context.Background(), "http://dead.example/book/index.php?md5=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != server.URL+"/get.php?key=direct" {
		t.Errorf("unexpected link %q", link)
	}
}

func TestResolve_MirrorPageCandidateList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/book/index.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/gate/download?id=1">Mirror 1</a>
			<a href="/dl.php?id=2">Mirror 2</a>
			<a href="/about">About</a>
		</body></html>`))
	})
	mux.HandleFunc("/gate/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	mux.HandleFunc("/dl.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{}, server.URL)
	link, err := r.Resolve(context.Background(), "/book/index.php?md5=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The first candidate serves HTML and is rejected; the second wins.
	if link != server.URL+"/dl.php?id=2" {
		t.Errorf("unexpected link %q", link)
	}
}

func TestResolve_ArchivePage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/md5/deadbeef", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/donate">Donate</a>
			<a href="/deadbeef/book.pdf">Slow partner server</a>
		</body></html>`))
	})
	mux.HandleFunc("/deadbeef/book.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{ArchiveHost: server.URL})
	link, err := r.Resolve(context.Background(), server.URL+"/md5/deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != server.URL+"/deadbeef/book.pdf" {
		t.Errorf("unexpected link %q", link)
	}
}

func TestResolve_ArchiveSciDBPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/scidb/10.1000/xyz123", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/donate">Donate</a>
			<a href="/files/10.1000/xyz123.pdf">Download</a>
		</body></html>`))
	})
	mux.HandleFunc("/files/10.1000/xyz123.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{ArchiveHost: server.URL})
	link, err := r.Resolve(context.Background(), server.URL+"/scidb/10.1000/xyz123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link != server.URL+"/files/10.1000/xyz123.pdf" {
		t.Errorf("unexpected link %q", link)
	}
}

func TestResolve_EmptyPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ads.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>nothing here</body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := newTestResolver(t, Config{})
	if _, err := r.Resolve(context.Background(), server.URL+"/ads.php?md5=x"); !errors.Is(err, ErrNoDirectLink) {
		t.Fatalf("expected ErrNoDirectLink, got %v", err)
	}
}
