// Package filter decides whether a candidate item is promotional.
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/lysyi3m/content-forge/app/cfg"
	"github.com/lysyi3m/content-forge/app/feed"
)

var (
	linkPattern     = regexp.MustCompile(`(?i)<a\s`)
	currencyPattern = regexp.MustCompile(`(?i)[$€£¥]\s?\d|\d[\d.,]*\s?(usd|eur|gbp|dollars?|euros?)\b`)
)

type Reason string

const (
	ReasonNone       Reason = ""
	ReasonKeyword    Reason = "keyword"
	ReasonUppercase  Reason = "uppercase"
	ReasonLinks      Reason = "links"
	ReasonClassifier Reason = "classifier"
)

type Verdict struct {
	Promotional bool
	Reason      Reason
	// Escalated is set when the model classifier was consulted.
	Escalated  bool
	Currency   bool
	Confidence float64
}

type Filterer struct {
	settings   cfg.FilterSettings
	matcher    *ahocorasick.Matcher
	classifier Classifier
}

// NewFilterer builds the keyword matcher once. classifier may be nil, in
// which case escalation always passes the item.
func NewFilterer(settings cfg.FilterSettings, classifier Classifier) *Filterer {
	patterns := make([]string, 0, len(settings.Keywords))
	for _, keyword := range settings.Keywords {
		if normalized := normalize(keyword); normalized != "" {
			patterns = append(patterns, " "+normalized+" ")
		}
	}

	return &Filterer{
		settings:   settings,
		matcher:    ahocorasick.NewStringMatcher(patterns),
		classifier: classifier,
	}
}

// Check runs the deterministic rules first and only then the classifier.
// content is HTML; links are counted on the markup, words on its text.
func (f *Filterer) Check(ctx context.Context, title, content string) Verdict {
	text := strings.TrimSpace(title + " " + feed.PlainText(content))

	if f.hasKeyword(text) {
		return Verdict{Promotional: true, Reason: ReasonKeyword}
	}
	if uppercaseRatio(text) > f.settings.UppercaseRatio {
		return Verdict{Promotional: true, Reason: ReasonUppercase}
	}
	if len(linkPattern.FindAllStringIndex(content, -1)) > f.settings.MaxLinks {
		return Verdict{Promotional: true, Reason: ReasonLinks}
	}

	verdict := Verdict{Escalated: true, Currency: currencyPattern.MatchString(text)}
	if f.classifier == nil {
		return verdict
	}

	threshold := f.settings.DefaultConfidence
	if verdict.Currency {
		threshold = f.settings.CurrencyConfidence
	}

	classification, err := f.classifier.Classify(ctx, text)
	if err != nil {
		slog.Warn("Promotional classifier unavailable, passing item", "error", err)
		return verdict
	}

	verdict.Confidence = classification.Confidence
	if classification.Promotional && classification.Confidence > threshold {
		verdict.Promotional = true
		verdict.Reason = ReasonClassifier
	}
	return verdict
}

func (f *Filterer) hasKeyword(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		return false
	}
	return len(f.matcher.Match([]byte(" "+normalized+" "))) > 0
}

// uppercaseRatio is the share of whitespace tokens that are shouted
// words: at least two letters, none of them lowercase.
func uppercaseRatio(text string) float64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}

	shouted := 0
	for _, token := range tokens {
		letters, upper := 0, 0
		for _, r := range token {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 2 && letters == upper {
			shouted++
		}
	}
	return float64(shouted) / float64(len(tokens))
}

func normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func (v Verdict) String() string {
	if !v.Promotional {
		return "benign"
	}
	if v.Reason == ReasonClassifier {
		return fmt.Sprintf("promotional (%s, confidence %.2f)", v.Reason, v.Confidence)
	}
	return fmt.Sprintf("promotional (%s)", v.Reason)
}
