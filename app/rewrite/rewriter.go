package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/content-forge/app/cfg"
)

const (
	maxTags           = 7
	maxSocialCopyRune = 200
)

type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(*Rewriter)

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(sleep Sleeper) Option {
	return func(r *Rewriter) {
		r.sleep = sleep
	}
}

type Rewriter struct {
	client   Completer
	settings cfg.RewriteSettings
	sleep    Sleeper
}

func NewRewriter(client Completer, settings cfg.RewriteSettings, opts ...Option) *Rewriter {
	r := &Rewriter{
		client:   client,
		settings: settings,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite makes one logical generative call for the item. Rate-limit
// rejections are retried with exponential backoff; every other failure,
// including an unparseable answer, is returned immediately.
func (r *Rewriter) Rewrite(ctx context.Context, req Request) (*Result, error) {
	prompt := BuildPrompt(req, r.settings.MaxInputChars)

	for attempt := 0; ; attempt++ {
		raw, err := r.client.Complete(ctx, systemInstruction, prompt)
		if err == nil {
			return ParseResult(raw)
		}

		if !IsRateLimited(err) {
			return nil, fmt.Errorf("failed to call generative service: %w", err)
		}

		if attempt >= r.settings.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt+1, err)
		}

		wait := r.backoff(attempt)
		slog.Warn("Generative service rate limited, backing off",
			"attempt", attempt+1,
			"max_retries", r.settings.MaxRetries,
			"delay", wait.String())

		if err := r.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("failed waiting for rate limit backoff: %w", err)
		}
	}
}

func (r *Rewriter) backoff(attempt int) time.Duration {
	wait := r.settings.InitialBackoff
	for i := 0; i < attempt; i++ {
		wait *= time.Duration(r.settings.BackoffFactor)
	}
	return wait
}

// IsRateLimited recognises quota errors whether or not the client
// adapter already classified them.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"429", "RESOURCE_EXHAUSTED", "Too Many Requests", "rate_limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ParseResult decodes the structured answer. Anything that is not a JSON
// object with a title and content is ErrMalformedResponse.
func ParseResult(raw string) (*Result, error) {
	var result Result
	if err := DecodeJSON(raw, &result); err != nil {
		return nil, err
	}

	result.Title = strings.TrimSpace(result.Title)
	result.Content = strings.TrimSpace(result.Content)
	if result.Title == "" || result.Content == "" {
		return nil, fmt.Errorf("%w: missing title or content", ErrMalformedResponse)
	}

	result.Excerpt = strings.TrimSpace(result.Excerpt)
	result.MetaDescription = strings.TrimSpace(result.MetaDescription)
	result.Category = strings.TrimSpace(result.Category)
	result.SocialCopy = Truncate(strings.TrimSpace(result.SocialCopy), maxSocialCopyRune)
	result.Tags = cleanList(result.Tags, maxTags, "")
	result.SocialHashtags = cleanList(result.SocialHashtags, 0, "#")

	return &result, nil
}

// DecodeJSON extracts the first JSON object from a model answer, which
// may be wrapped in a markdown code fence or surrounded by prose.
func DecodeJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func cleanList(values []string, limit int, prefix string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(v, prefix) {
			v = prefix + v
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
