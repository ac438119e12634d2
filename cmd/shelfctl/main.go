// shelfctl is the command-line client: search the mirrors, grab files, and
// test mirror connectivity without running the server.
package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/openshelf/openshelf/internal/catalog"
	"github.com/openshelf/openshelf/internal/config"
	"github.com/openshelf/openshelf/internal/fetch"
	"github.com/openshelf/openshelf/internal/mirror"
	"github.com/openshelf/openshelf/internal/resolver"
	"github.com/openshelf/openshelf/internal/search"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "shelfctl",
		Short:         "OpenShelf command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	rootCmd.AddCommand(newSearchCmd(), newGrabCmd(), newMirrorsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// services bundles the pieces the subcommands share.
type services struct {
	cfg      *config.Config
	client   *fetch.Client
	mirrors  *mirror.Manager
	search   *search.Service
	resolver *resolver.Resolver
}

func buildServices() (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// CLI output is the UI; keep the logger quiet.
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)

	client := fetch.NewClient(fetch.Config{
		Timeout:     cfg.Fetch.Timeout,
		Retries:     cfg.Fetch.Retries,
		MaxInFlight: cfg.Fetch.MaxInFlight,
		Cache: fetch.CacheConfig{
			TTL:      cfg.Fetch.CacheTTL,
			MaxItems: cfg.Fetch.CacheMaxItems,
		},
	}, logger)

	bases := cfg.Mirrors.Bases
	if len(bases) == 0 {
		if bases, err = mirror.DefaultMirrors(); err != nil {
			return nil, err
		}
	}
	manager := mirror.NewManager(bases, client, logger)

	enricher := catalog.NewBooksAPIClient(cfg.Enrich.BaseURL, client, logger)
	aggregator := catalog.NewAggregator(catalog.AggregatorConfig{
		PoolWidth:     cfg.Enrich.Concurrency,
		SecondaryHost: cfg.Mirrors.SecondaryHost,
		ArchiveHost:   cfg.Mirrors.ArchiveHost,
	}, enricher, logger)

	return &services{
		cfg:     cfg,
		client:  client,
		mirrors: manager,
		search: search.NewService(search.Config{
			SearchPath:  cfg.Mirrors.SearchPath,
			DOIBaseURL:  cfg.Enrich.DOIBaseURL,
			ArchiveHost: cfg.Mirrors.ArchiveHost,
		}, manager, aggregator, client, logger),
		resolver: resolver.NewResolver(resolver.Config{
			SecondaryHost: cfg.Mirrors.SecondaryHost,
			ArchiveHost:   cfg.Mirrors.ArchiveHost,
		}, client, manager, logger),
	}, nil
}

func newSearchCmd() *cobra.Command {
	var showLinks bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the mirrors for a title, ISBN, or DOI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			events := svc.search.Search(cmd.Context(), query)
			return renderSearch(events, os.Stdout, os.Stderr, showLinks)
		},
	}

	cmd.Flags().BoolVar(&showLinks, "links", false, "print download link candidates per file")
	return cmd
}

// renderSearch prints the search event stream. The channel is always drained
// to completion so the producing goroutine is never left blocked; an error
// event is remembered and returned once the stream closes.
func renderSearch(events <-chan search.Event, out, status io.Writer, showLinks bool) error {
	count := 0
	var searchErr error
	for event := range events {
		switch event.Type {
		case search.EventStatus:
			fmt.Fprintln(status, event.Message)
		case search.EventError:
			if searchErr == nil {
				searchErr = fmt.Errorf("%s", event.Message)
			}
		case search.EventResult:
			count++
			r := event.Record
			fmt.Fprintf(out, "%2d. %s", count, r.Title)
			if r.Author != "" {
				fmt.Fprintf(out, " - %s", r.Author)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "    %s  %s  %s  %d file(s)", r.Year, r.Extension, r.Size, r.FileCount)
			if r.ISBN != "" {
				fmt.Fprintf(out, "  isbn:%s", r.ISBN)
			}
			fmt.Fprintln(out)
			if showLinks {
				for _, f := range r.Files {
					for _, link := range f.DownloadLinks {
						fmt.Fprintf(out, "    %s\n", link)
					}
				}
			}
		}
	}

	if searchErr != nil {
		return searchErr
	}
	if count == 0 {
		fmt.Fprintln(status, "no results")
	}
	return nil
}

func newGrabCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "grab <page-url>...",
		Short: "Resolve mirror links and download the first that verifies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var link string
			var lastErr error
			for _, pageURL := range args {
				if link, lastErr = svc.resolver.Resolve(ctx, pageURL); lastErr == nil {
					break
				}
				fmt.Fprintf(os.Stderr, "link did not resolve: %s (%v)\n", pageURL, lastErr)
			}
			if link == "" {
				return fmt.Errorf("no link resolved: %w", lastErr)
			}

			body, total, err := svc.client.Stream(ctx, link)
			if err != nil {
				return err
			}
			defer body.Close()

			dest := output
			if dest == "" {
				dest = destFromLink(link)
			}
			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			defer out.Close()

			bar := progressbar.DefaultBytes(total, filepath.Base(dest))
			if _, err := io.Copy(io.MultiWriter(out, bar), body); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "saved %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: derived from the link)")
	return cmd
}

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Manage and test mirrors",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Probe every configured mirror and report the first working one",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}

			results := svc.mirrors.Probe(cmd.Context(), func(status string) {
				fmt.Fprintln(os.Stderr, status)
			})

			for _, r := range results {
				mark := "ok"
				if !r.OK {
					mark = "FAIL: " + r.Error
				}
				fmt.Printf("%-30s %s\n", r.Mirror, mark)
			}
			if current := svc.mirrors.Current(); current != "" {
				fmt.Printf("current: %s\n", current)
			} else {
				fmt.Println("no working mirror")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the configured mirror list",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildServices()
			if err != nil {
				return err
			}

			status := svc.mirrors.GetStatus()
			for _, m := range status.Mirrors {
				fmt.Println(m)
			}
			return nil
		},
	})

	return cmd
}

// destFromLink derives a local filename from a direct link, falling back to
// a generic name when the path carries none.
func destFromLink(link string) string {
	if u, err := url.Parse(link); err == nil {
		if base := filepath.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "download.bin"
}
