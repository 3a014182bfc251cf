// Package extract pulls the main readable text out of article pages.
package extract

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Config controls extraction behavior.
type Config struct {
	UserAgent     string
	MaxBytes      int
	Timeout       time.Duration
	MinLineLength int
}

// Extractor implements ingest.Extractor. Extraction is best-effort: every
// failure path degrades to an empty string with a logged reason, never an
// error, because callers always have the feed-supplied text to fall back on.
type Extractor struct {
	cfg     Config
	fetcher *pageFetcher
	logger  *zap.Logger
}

// Containers holding article bodies on most news sites, tried in order.
var contentSelectors = []string{
	"article",
	"[role=main]",
	".article-body",
	".post-content",
	".entry-content",
	".story-body",
	"main",
	"#content",
}

// Elements that never contain article text.
const strippedSelectors = "script, style, nav, header, footer, aside, form, iframe, noscript, " +
	".ad, .ads, .advertisement, .promo, .comments, #comments, .social-share, .related"

var (
	bracketedAside     = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	minParagraphsInRun = 3
)

var artifactPrefixes = []string{
	"Advertisement",
	"Photo by",
	"Image credit",
	"Sign up for",
	"Subscribe to",
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MinLineLength <= 0 {
		cfg.MinLineLength = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg: cfg,
		fetcher: newPageFetcher(pageFetcherConfig{
			UserAgent: cfg.UserAgent,
			MaxBytes:  cfg.MaxBytes,
			Timeout:   cfg.Timeout,
		}),
		logger: logger,
	}
}

// FullText fetches the page at url and extracts its main content. Returns an
// empty string on any failure.
func (e *Extractor) FullText(ctx context.Context, url string) string {
	body, err := e.fetcher.fetch(ctx, url)
	if err != nil {
		e.logger.Debug("page fetch failed, falling back to feed text",
			zap.String("url", url),
			zap.Error(err),
		)
		return ""
	}
	text := e.FromHTML(body)
	if text == "" {
		e.logger.Debug("no usable content extracted", zap.String("url", url))
	}
	return text
}

// FromHTML extracts the main content from an HTML document. Exposed separately
// so callers holding a body (and tests) can skip the network round trip.
func (e *Extractor) FromHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find(strippedSelectors).Remove()

	if text := e.fromKnownContainers(doc); text != "" {
		return text
	}
	if text := e.fromDensestCluster(doc); text != "" {
		return text
	}
	return e.cleanText(doc.Find("body").Text())
}

// fromKnownContainers tries the ordered selector list; a container wins when
// it holds at least minParagraphsInRun non-trivial paragraphs.
func (e *Extractor) fromKnownContainers(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		paragraphs := paragraphTexts(sel.Find("p"))
		if len(paragraphs) >= minParagraphsInRun {
			return e.cleanText(strings.Join(paragraphs, "\n"))
		}
	}
	return ""
}

// fromDensestCluster finds the DOM node parenting the largest number of
// paragraphs and uses those paragraphs when there are at least three.
func (e *Extractor) fromDensestCluster(doc *goquery.Document) string {
	counts := make(map[*html.Node][]string)
	var best *html.Node

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text == "" {
			return
		}
		node := p.Get(0)
		if node.Parent == nil {
			return
		}
		counts[node.Parent] = append(counts[node.Parent], text)
		if best == nil || len(counts[node.Parent]) > len(counts[best]) {
			best = node.Parent
		}
	})

	if best == nil || len(counts[best]) < minParagraphsInRun {
		return ""
	}
	return e.cleanText(strings.Join(counts[best], "\n"))
}

// cleanText drops boilerplate-length lines and artifact phrases, then
// collapses whitespace.
func (e *Extractor) cleanText(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = bracketedAside.ReplaceAllString(line, "")
		line = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
		if len(line) < e.cfg.MinLineLength {
			continue
		}
		if isArtifact(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

func isArtifact(line string) bool {
	for _, prefix := range artifactPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func paragraphTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}
