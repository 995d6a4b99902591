package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/skillens/skillens/internal/discovery"
	"github.com/skillens/skillens/internal/log"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <catalog-url-or-file>",
	Short: "Ingest skills from a catalog page",
	Long: `Ingest skills from a catalog page.

The argument is either a skill page URL, a catalog listing URL, or a
local HTML file. Skill pages are ingested directly; catalog pages are
crawled for skill page links, each of which is fetched and ingested.
Every ingested skill gets a fetch job queued (deduplicated against
already-open jobs).

Examples:
  skillens discover https://skills.sh/owner/repo/my-skill
  skillens discover https://skills.sh/trending
  skillens discover ./page.html --page-url https://skills.sh/owner/repo/my-skill`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

var (
	discoverPageURL   string
	discoverRateLimit float64
	discoverLimit     int
)

func init() {
	discoverCmd.Flags().StringVar(&discoverPageURL, "page-url", "", "Canonical page URL when reading from a local file")
	discoverCmd.Flags().Float64Var(&discoverRateLimit, "rate", 5.0, "Catalog requests per second")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "Maximum skill pages to ingest from a catalog (0 = all)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, database, err := openRuntime()
	if err != nil {
		return err
	}
	defer func() {
		_ = database.Close()
	}()
	defer log.Sync()

	source := args[0]
	ingestor := discovery.NewIngestor(database, cfg.Versions.ParseVersion)
	stats := &discovery.IngestStats{}

	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		if discoverPageURL == "" {
			return fmt.Errorf("--page-url is required when reading from a local file")
		}
		html, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("read %s: %w", source, err)
		}
		if _, err := ingestor.IngestPage(discoverPageURL, string(html), stats); err != nil {
			return err
		}
		printIngestStats(stats)
		return nil
	}

	httpClient := &http.Client{Timeout: 20 * time.Second}
	limiter := rate.NewLimiter(rate.Limit(discoverRateLimit), 1)
	ctx := cmd.Context()

	html, err := fetchPage(ctx, httpClient, limiter, source)
	if err != nil {
		return err
	}

	// A skill page path ingests directly; anything else is a catalog
	// listing to crawl.
	if _, _, _, pathErr := discovery.ParsePagePath(source); pathErr == nil {
		if _, err := ingestor.IngestPage(source, html, stats); err != nil {
			return err
		}
		printIngestStats(stats)
		return nil
	}

	urls, err := discovery.ExtractSkillURLs(source, html)
	if err != nil {
		return err
	}
	if discoverLimit > 0 && len(urls) > discoverLimit {
		urls = urls[:discoverLimit]
	}
	if len(urls) == 0 {
		fmt.Println("No skill pages found.")
		return nil
	}

	fmt.Printf("Found %d skill page(s)\n", len(urls))
	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageHTML, err := fetchPage(ctx, httpClient, limiter, pageURL)
		if err != nil {
			stats.Failed++
			log.L().Warn("fetch skill page", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		if _, err := ingestor.IngestPage(pageURL, pageHTML, stats); err != nil {
			log.L().Warn("ingest skill page", zap.String("url", pageURL), zap.Error(err))
		}
	}
	printIngestStats(stats)
	return nil
}

func fetchPage(ctx context.Context, client *http.Client, limiter *rate.Limiter, url string) (string, error) {
	if err := limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "skillens catalog scraper")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

func printIngestStats(stats *discovery.IngestStats) {
	fmt.Printf("Upserted %d skill(s), queued %d fetch job(s)\n", stats.Upserted, stats.FetchQueued)
	if stats.Deduplicated > 0 {
		fmt.Printf("Skipped %d already-queued job(s)\n", stats.Deduplicated)
	}
	if stats.Failed > 0 {
		fmt.Printf("Failed %d page(s)\n", stats.Failed)
	}
}
