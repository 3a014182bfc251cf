// Package feed retrieves and parses syndication feeds with a hard size cap.
package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
)

// Config controls retriever behavior.
type Config struct {
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
}

// Retriever implements ingest.FeedFetcher over plain HTTP plus gofeed.
type Retriever struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
	clock  ingest.Clock
	policy ingest.PolitenessPolicy
	logger *zap.Logger
}

// Option customizes Retriever construction.
type Option func(*Retriever)

// WithPolicy installs a pre-fetch admission hook.
func WithPolicy(policy ingest.PolitenessPolicy) Option {
	return func(r *Retriever) { r.policy = policy }
}

// WithHTTPClient overrides the HTTP client (for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(r *Retriever) { r.client = client }
}

// New builds a Retriever.
func New(cfg Config, clock ingest.Clock, logger *zap.Logger, opts ...Option) *Retriever {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 * 1024 * 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
		parser: gofeed.NewParser(),
		clock:  clock,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch retrieves the feed at url and returns its entries in feed order.
// Oversized responses fail with ingest.ErrFeedTooLarge; unparsable payloads
// with ingest.ErrFeedParse. Network and parse errors are returned, never
// escalated — the caller decides whether to skip or retry.
func (r *Retriever) Fetch(ctx context.Context, url string) ([]ingest.RawEntry, error) {
	if r.policy != nil && !r.policy.AllowFetch(url) {
		return nil, fmt.Errorf("fetch of %s blocked by politeness policy", url)
	}

	start := r.clock.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > r.cfg.MaxBytes {
		return nil, fmt.Errorf("feed declares %d bytes against cap %d: %w",
			resp.ContentLength, r.cfg.MaxBytes, ingest.ErrFeedTooLarge)
	}

	// Read one byte past the cap so undeclared oversize is detectable.
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if int64(len(body)) > r.cfg.MaxBytes {
		return nil, fmt.Errorf("feed body exceeds cap %d: %w", r.cfg.MaxBytes, ingest.ErrFeedTooLarge)
	}

	parsed, err := r.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrFeedParse, err)
	}

	entries := make([]ingest.RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, r.toEntry(item))
	}

	metrics.ObserveFeedFetch(url, r.clock.Now().Sub(start))
	r.logger.Debug("feed fetched",
		zap.String("url", url),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

func (r *Retriever) toEntry(item *gofeed.Item) ingest.RawEntry {
	entry := ingest.RawEntry{
		Title: item.Title,
		Link:  item.Link,
	}

	switch {
	case item.PublishedParsed != nil:
		entry.PublishedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.PublishedAt = *item.UpdatedParsed
	default:
		entry.PublishedAt = r.clock.Now()
	}

	// First non-empty of content, summary/description, title.
	switch {
	case item.Content != "":
		entry.Body = item.Content
	case item.Description != "":
		entry.Body = item.Description
	default:
		entry.Body = item.Title
	}

	if len(item.Categories) > 0 {
		entry.Category = item.Categories[0]
	}
	return entry
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
