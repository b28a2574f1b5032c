// Package scryfall downloads the Scryfall bulk-data card export.
package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/ingest"
	"github.com/kailas-cloud/docdex/internal/metrics"
)

// DefaultBulkAPIURL lists the available bulk exports.
const DefaultBulkAPIURL = "https://api.scryfall.com/bulk-data"

const (
	userAgent        = "docdex/1.0"
	progressInterval = 5 * time.Second
)

// Client fetches one bulk export type.
type Client struct {
	apiURL      string
	bulkType    string
	downloadDir string
	http        *http.Client
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests, proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a client for the given bulk type ("default_cards", "all_cards", ...).
// An empty downloadDir uses the OS temp directory.
func New(apiURL, bulkType, downloadDir string, logger *zap.Logger, opts ...Option) *Client {
	if apiURL == "" {
		apiURL = DefaultBulkAPIURL
	}
	c := &Client{
		apiURL:      apiURL,
		bulkType:    bulkType,
		downloadDir: downloadDir,
		http:        &http.Client{Timeout: 30 * time.Minute},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// bulkEntry is one item of the bulk-data listing.
type bulkEntry struct {
	Type        string `json:"type"`
	UpdatedAt   string `json:"updated_at"`
	DownloadURI string `json:"download_uri"`
	Size        int64  `json:"size"`
}

type bulkList struct {
	Data []bulkEntry `json:"data"`
}

// Fetch downloads the export to a temp file and decodes every card.
// Nothing is returned unless the whole export decoded.
func (c *Client) Fetch(ctx context.Context) (ingest.Snapshot, error) {
	entry, err := c.entry(ctx)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrIngestFetch, err)
	}
	date, err := snapshotDate(entry.UpdatedAt)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrIngestFetch, err)
	}

	path, err := c.download(ctx, entry)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrIngestFetch, err)
	}
	defer func() { _ = os.Remove(path) }()

	records, err := decodeFile(path)
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("%w: %w", domain.ErrIngestFetch, err)
	}

	c.logger.Info("Bulk snapshot decoded",
		zap.String("type", c.bulkType),
		zap.String("date", date),
		zap.Int("records", len(records)),
	)
	return ingest.Snapshot{Date: date, Records: records}, nil
}

func (c *Client) entry(ctx context.Context) (bulkEntry, error) {
	resp, err := c.get(ctx, c.apiURL)
	if err != nil {
		return bulkEntry{}, fmt.Errorf("bulk listing: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var list bulkList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return bulkEntry{}, fmt.Errorf("parse bulk listing: %w", err)
	}
	for _, e := range list.Data {
		if e.Type == c.bulkType {
			if e.DownloadURI == "" {
				return bulkEntry{}, fmt.Errorf("bulk type %q has no download_uri", c.bulkType)
			}
			return e, nil
		}
	}
	return bulkEntry{}, fmt.Errorf("bulk type %q not listed", c.bulkType)
}

func (c *Client) download(ctx context.Context, entry bulkEntry) (string, error) {
	resp, err := c.get(ctx, entry.DownloadURI)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.CreateTemp(c.downloadDir, "scryfall-"+c.bulkType+"-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = entry.Size
	}
	written, err := io.Copy(f, &progressReader{
		reader: resp.Body,
		total:  total,
		name:   c.bulkType,
		logger: c.logger,
	})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write: %w", err)
	}

	c.logger.Info("Bulk snapshot downloaded",
		zap.String("type", c.bulkType),
		zap.Int64("bytes", written),
	)
	return f.Name(), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, string(body))
	}
	return resp, nil
}

func decodeFile(path string) ([]*document.Document, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from os.CreateTemp
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []*document.Document
	if err := document.DecodeArray(f, func(d *document.Document) error {
		records = append(records, d)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return records, nil
}

// snapshotDate reduces the export's updated_at timestamp to its UTC day.
func snapshotDate(updatedAt string) (string, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, updatedAt); err == nil {
			return t.UTC().Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("unparseable updated_at %q", updatedAt)
}

// progressReader logs download progress and counts bytes.
type progressReader struct {
	reader  io.Reader
	total   int64
	current int64
	name    string
	logger  *zap.Logger
	lastLog time.Time
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	metrics.IngestDownloadBytes.Add(float64(n))

	if time.Since(pr.lastLog) > progressInterval {
		pr.lastLog = time.Now()
		fields := []zap.Field{zap.String("type", pr.name), zap.Int64("mb", pr.current/1024/1024)}
		if pr.total > 0 {
			fields = append(fields, zap.Float64("percent", float64(pr.current)/float64(pr.total)*100))
		}
		pr.logger.Info("Downloading bulk snapshot", fields...)
	}
	return n, err //nolint:wrapcheck // io.Copy needs io.EOF unwrapped
}
