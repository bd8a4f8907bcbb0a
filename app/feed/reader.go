package feed

import (
	"context"
	"fmt"

	"github.com/lysyi3m/content-forge/app/database"
)

// Reader turns a source into candidates according to its kind.
type Reader struct {
	fetcher documentFetcher
	parser  *Parser
	sitemap *SitemapReader
}

func NewReader(fetcher documentFetcher) *Reader {
	return &Reader{
		fetcher: fetcher,
		parser:  NewParser(),
		sitemap: NewSitemapReader(fetcher),
	}
}

func (r *Reader) Read(ctx context.Context, url string, kind database.SourceKind) ([]Candidate, error) {
	switch kind {
	case database.SourceKindFeed:
		data, err := r.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return r.parser.Run(data)

	case database.SourceKindSitemap:
		return r.sitemap.Read(ctx, url)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, kind)
	}
}
