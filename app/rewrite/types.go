package rewrite

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited marks a generative call rejected for quota reasons.
	ErrRateLimited = errors.New("generative service rate limited")
	// ErrRetriesExhausted is terminal for the item being rewritten.
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")
	// ErrMalformedResponse is a data error and is never retried.
	ErrMalformedResponse = errors.New("malformed generative response")
)

// Completer is the text-completion contract of the generative service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Request struct {
	Title        string
	Content      string
	ToneOfVoice  string
	BrandContext string
	Language     string
}

type Result struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Excerpt         string   `json:"excerpt"`
	MetaDescription string   `json:"metaDescription"`
	Tags            []string `json:"tags"`
	Category        string   `json:"category"`
	SocialCopy      string   `json:"socialCopy"`
	SocialHashtags  []string `json:"socialHashtags"`
}
