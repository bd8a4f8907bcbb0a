package feed

import (
	"time"
)

// Candidate is a feed or sitemap entry that has not been stored yet.
type Candidate struct {
	Title       string
	URL         string
	Content     string
	Author      string
	PublishedAt *time.Time
	ImageURL    string
	// ContentEmpty marks entries that carry no body (sitemap URLs); the
	// extractor fills them in later.
	ContentEmpty bool
}

// Article is what the extractor pulls out of an arbitrary HTML page.
type Article struct {
	Title       string
	Author      string
	PublishedAt *time.Time
	ImageURL    string
	Content     string
}
