package extract

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
)

// pageFetcherConfig controls the colly collector used for article pages.
type pageFetcherConfig struct {
	UserAgent string
	MaxBytes  int
	Timeout   time.Duration
}

// pageFetcher retrieves article pages through a cloned colly collector. Bodies
// past MaxBytes are truncated by the collector; responses that declare a larger
// size up front are aborted before the body transfer starts.
type pageFetcher struct {
	cfg           pageFetcherConfig
	baseCollector *colly.Collector
}

func newPageFetcher(cfg pageFetcherConfig) *pageFetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 2 * 1024 * 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBytes
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	})
	return &pageFetcher{cfg: cfg, baseCollector: c}
}

// fetch returns the page body for url, or an error when the page is
// unreachable, non-HTML-sized beyond the cap, or the context ends first.
func (f *pageFetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponseHeaders(func(r *colly.Response) {
		if declared, err := strconv.Atoi(r.Headers.Get("Content-Length")); err == nil && declared > f.cfg.MaxBytes {
			fetchErr = fmt.Errorf("page declares %d bytes against cap %d", declared, f.cfg.MaxBytes)
			r.Request.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			fetchErr = fmt.Errorf("unexpected status %d", r.StatusCode)
			return
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("visit page: %w", err)
		}
		return body, nil
	}
}
