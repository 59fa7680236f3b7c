package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxCatalogBytes bounds a remote catalog download.
const maxCatalogBytes = 1 << 20

// Fetcher retrieves an element catalog from a remote URL.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given source URL.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch performs an HTTP GET and parses the body, merging it over the
// built-in catalog.
func (f *Fetcher) Fetch(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxCatalogBytes {
		return nil, fmt.Errorf("catalog exceeds %d byte limit", maxCatalogBytes)
	}

	override, err := parseBytes(body, f.sourceURL, f.logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info("catalog fetched", "source", f.sourceURL, "bodies", len(override.Bodies()))
	return Default().Merge(override), nil
}

func parseBytes(data []byte, source string, logger *slog.Logger) (*Catalog, error) {
	return Parse(bytes.NewReader(data), source, logger)
}
