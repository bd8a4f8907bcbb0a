package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const maxSitemapDepth = 3

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

type xmlSitemap struct {
	Loc string `xml:"loc"`
}

type documentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SitemapReader walks a sitemap or sitemap index. Child sitemaps are
// fetched the same way; a broken child is logged and skipped.
type SitemapReader struct {
	fetcher documentFetcher
}

func NewSitemapReader(fetcher documentFetcher) *SitemapReader {
	return &SitemapReader{fetcher: fetcher}
}

func (r *SitemapReader) Read(ctx context.Context, url string) ([]Candidate, error) {
	visited := make(map[string]bool)
	return r.read(ctx, url, 0, visited)
}

func (r *SitemapReader) read(ctx context.Context, url string, depth int, visited map[string]bool) ([]Candidate, error) {
	visited[url] = true

	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	switch root.XMLName.Local {
	case "urlset":
		return parseURLSet(data)

	case "sitemapindex":
		children, err := parseSitemapIndex(data)
		if err != nil {
			return nil, err
		}
		if depth >= maxSitemapDepth {
			slog.Warn("Sitemap index nested too deep, skipping children", "url", url, "depth", depth)
			return []Candidate{}, nil
		}

		candidates := []Candidate{}
		for _, child := range children {
			if visited[child] {
				continue
			}
			childCandidates, err := r.read(ctx, child, depth+1, visited)
			if err != nil {
				slog.Warn("Failed to read child sitemap", "parent", url, "url", child, "error", err)
				continue
			}
			candidates = append(candidates, childCandidates...)
		}
		return candidates, nil

	default:
		return nil, fmt.Errorf("failed to parse sitemap: unexpected root element <%s>", root.XMLName.Local)
	}
}

func parseURLSet(data []byte) ([]Candidate, error) {
	var urlset xmlURLSet
	if err := xml.Unmarshal(data, &urlset); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	candidates := make([]Candidate, 0, len(urlset.URLs))
	for _, entry := range urlset.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		candidate := Candidate{URL: loc, ContentEmpty: true}
		if lastMod, err := parseLastMod(entry.LastMod); err == nil {
			candidate.PublishedAt = &lastMod
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func parseSitemapIndex(data []byte) ([]string, error) {
	var index xmlSitemapIndex
	if err := xml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, s := range index.Sitemaps {
		if loc := strings.TrimSpace(s.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// parseLastMod accepts the W3C datetime forms sitemaps use in practice.
func parseLastMod(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty lastmod")
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04-07:00", time.DateOnly} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized lastmod %q", trimmed)
}
