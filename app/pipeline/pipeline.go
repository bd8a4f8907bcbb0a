package pipeline

import (
	"github.com/lysyi3m/content-forge/app/database"
	"github.com/lysyi3m/content-forge/app/fingerprint"
)

// Deps lists the collaborators of a Pipeline. Images and Metrics may be
// nil.
type Deps struct {
	Sources   database.SourceRepository
	Items     database.ItemRepository
	Backlinks database.BacklinkRepository

	Reader      SourceReader
	Extractor   Extractor
	Filter      ContentFilter
	Fingerprint *fingerprint.Engine
	Rewriter    Rewriter
	Categories  CategoryResolver
	Images      ImageStore
	Metrics     *Metrics
}

type Pipeline struct {
	Deps
}

func New(deps Deps) *Pipeline {
	if deps.Fingerprint == nil {
		deps.Fingerprint = fingerprint.New(fingerprint.DefaultThreshold)
	}
	return &Pipeline{Deps: deps}
}
