package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var bodySelectors = []string{
	"article",
	`[role="main"]`,
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	".story-body",
	".content",
	"main",
}

var authorSelectors = []string{
	`[rel="author"]`,
	`[itemprop="author"]`,
	".author-name",
	".post-author",
	".entry-author",
	".byline",
	".author",
}

var bylinePattern = regexp.MustCompile(`\b[Bb]y\s+([\p{Lu}][\p{L}.'-]*(?:\s+[\p{Lu}][\p{L}.'-]*){0,3})`)

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z0700",
	time.DateTime,
	time.DateOnly,
	time.RFC1123Z,
	time.RFC1123,
}

type ContentExtractor struct {
	fetcher     documentFetcher
	minBodySize int
}

func NewContentExtractor(fetcher documentFetcher, minBodySize int) *ContentExtractor {
	return &ContentExtractor{
		fetcher:     fetcher,
		minBodySize: minBodySize,
	}
}

// Extract fetches a page and pulls the article out of it. Fetch failures
// keep the FetchError contract of the feed reader.
func (e *ContentExtractor) Extract(ctx context.Context, pageURL string) (*Article, error) {
	data, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	return e.Run(data, pageURL)
}

func (e *ContentExtractor) Run(data []byte, pageURL string) (*Article, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("HTML data is empty")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	article := &Article{
		Title:       extractTitle(doc),
		Author:      extractAuthor(doc),
		PublishedAt: extractPublishedAt(doc),
		ImageURL:    extractImage(doc),
	}

	content, method := e.extractBody(doc, data, pageURL)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("no content extracted from HTML data")
	}
	article.Content = content

	slog.Debug("Content extracted successfully",
		"url", pageURL,
		"method", method,
		"title", article.Title,
		"content_length", len(article.Content))

	return article, nil
}

// extractBody tries the structural selectors in order, then readability,
// then the whole <body>.
func (e *ContentExtractor) extractBody(doc *goquery.Document, data []byte, pageURL string) (string, string) {
	for _, selector := range bodySelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		sanitize(sel)
		content, err := sel.Html()
		if err != nil {
			continue
		}
		if len(strings.TrimSpace(content)) >= e.minBodySize {
			return strings.TrimSpace(content), selector
		}
	}

	if content := e.readabilityBody(data, pageURL); len(content) >= e.minBodySize {
		return content, "readability"
	}

	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	sanitize(body)
	content, err := body.Html()
	if err != nil {
		return "", "body"
	}
	return strings.TrimSpace(content), "body"
}

func (e *ContentExtractor) readabilityBody(data []byte, pageURL string) string {
	parsedURL, _ := url.Parse(pageURL)

	result, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil || strings.TrimSpace(result.Content) == "" {
		return ""
	}

	fragment, err := goquery.NewDocumentFromReader(strings.NewReader(result.Content))
	if err != nil {
		return ""
	}
	sanitize(fragment.Selection)

	body := fragment.Find("body")
	if body.Length() == 0 {
		body = fragment.Selection
	}
	content, err := body.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(content)
}

func extractTitle(doc *goquery.Document) string {
	if title := metaContent(doc.Selection,
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
		`meta[property="twitter:title"]`,
	); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractAuthor(doc *goquery.Document) string {
	if author := metaContent(doc.Selection, `meta[name="author"]`, `meta[property="article:author"]`); author != "" && !isURL(author) {
		return author
	}

	for _, selector := range authorSelectors {
		text := strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
		if text == "" {
			continue
		}
		if m := bylinePattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
		return text
	}

	if m := bylinePattern.FindStringSubmatch(doc.Find("body").Text()); m != nil {
		return m[1]
	}
	return ""
}

func extractPublishedAt(doc *goquery.Document) *time.Time {
	candidates := []string{
		metaContent(doc.Selection, `meta[property="article:published_time"]`),
		metaContent(doc.Selection, `meta[name="publish_date"]`, `meta[property="publish_date"]`),
		doc.Find("time[datetime]").First().AttrOr("datetime", ""),
	}

	for _, raw := range candidates {
		if t, ok := parsePublished(raw); ok {
			return &t
		}
	}
	return nil
}

func parsePublished(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func extractImage(doc *goquery.Document) string {
	if image := metaContent(doc.Selection,
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
		`meta[property="twitter:image"]`,
	); image != "" {
		return image
	}
	if href, ok := doc.Find(`link[rel="image_src"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	return firstImage(doc.Find("body"))
}
