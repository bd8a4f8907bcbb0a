package enrich

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxSlugLength   = 80
	slugSuffixChars = 8
	fallbackSlug    = "article"
)

type SlugChecker interface {
	SlugExists(ctx context.Context, siteID, slug string) (bool, error)
}

// Slugify turns a title into a lowercase ASCII-friendly path segment.
// Accents are folded ("Café" becomes "cafe"); other scripts are kept.
func Slugify(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}

	var sb strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingDash = false
			sb.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := sb.String()
	if utf8.RuneCountInString(slug) > maxSlugLength {
		slug = string([]rune(slug)[:maxSlugLength])
		// prefer cutting on a word boundary
		if i := strings.LastIndexByte(slug, '-'); i > len(slug)/2 {
			slug = slug[:i]
		}
		slug = strings.Trim(slug, "-")
	}

	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// UniqueSlug appends a short item-id suffix when the site already uses
// the plain slug.
func UniqueSlug(ctx context.Context, checker SlugChecker, siteID, title, itemID string) (string, error) {
	slug := Slugify(title)

	exists, err := checker.SlugExists(ctx, siteID, slug)
	if err != nil {
		return "", fmt.Errorf("failed to check slug: %w", err)
	}
	if !exists {
		return slug, nil
	}

	suffix := strings.ReplaceAll(itemID, "-", "")
	if len(suffix) > slugSuffixChars {
		suffix = suffix[:slugSuffixChars]
	}
	return slug + "-" + suffix, nil
}
