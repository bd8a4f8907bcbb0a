// Package pipeline drives content items from harvest to publication.
package pipeline

import (
	"context"

	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/enrich"
	"github.com/lysyi3m/content-forge/app/feed"
	"github.com/lysyi3m/content-forge/app/filter"
	"github.com/lysyi3m/content-forge/app/rewrite"
)

type SourceReader interface {
	Read(ctx context.Context, url string, kind database.SourceKind) ([]feed.Candidate, error)
}

type Extractor interface {
	Extract(ctx context.Context, url string) (*feed.Article, error)
}

type ContentFilter interface {
	Check(ctx context.Context, title, content string) filter.Verdict
}

type Rewriter interface {
	Rewrite(ctx context.Context, req rewrite.Request) (*rewrite.Result, error)
}

type CategoryResolver interface {
	Resolve(ctx context.Context, siteID, suggested string) enrich.CategoryOutcome
}

type ImageStore interface {
	Store(ctx context.Context, imageURL, siteID, itemID string) string
}

type FetchStats struct {
	Sourced     int
	NewArticles int
	Duplicates  int
	Errors      int
}

type RewriteStats struct {
	Processed  int
	Published  int
	Filtered   int
	Duplicates int
	Errors     int
	Results    []ItemResult
}

type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

type Stage string

const (
	StageExtract     Stage = "extract"
	StageFilter      Stage = "filter"
	StageFingerprint Stage = "fingerprint"
	StageRewrite     Stage = "rewrite"
	StagePublish     Stage = "publish"
	StagePanic       Stage = "panic"
)

// ItemResult is the outcome of one item in a rewrite pass. Err is set
// only for failed items.
type ItemResult struct {
	ItemID  string
	Outcome Outcome
	Stage   Stage
	Err     error
}

func (s *RewriteStats) add(result ItemResult) {
	s.Processed++
	s.Results = append(s.Results, result)

	switch result.Outcome {
	case OutcomePublished:
		s.Published++
	case OutcomeFiltered:
		s.Filtered++
	case OutcomeDuplicate:
		s.Duplicates++
	default:
		s.Errors++
	}
}
