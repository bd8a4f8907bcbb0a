package rewrite

import (
	"cmp"
	"fmt"
	"strings"
)

const systemInstruction = `You are a senior editor who turns source material into original articles.
Write entirely new prose: never copy sentences from the source. Keep facts accurate and do not invent quotes.
Respond with a single JSON object and nothing else, using exactly these fields:
{
  "title": "rewritten headline",
  "content": "article body as HTML using <p>, <h2>, <ul> and <blockquote> only",
  "excerpt": "one or two sentence summary",
  "metaDescription": "search snippet between 150 and 160 characters",
  "tags": ["5 to 7 short topical tags"],
  "category": "one broad category name",
  "socialCopy": "social media post under 200 characters",
  "socialHashtags": ["#three", "#to", "#five"]
}`

const defaultTone = "clear, neutral and informative"

// BuildPrompt assembles the user prompt. Content longer than maxChars
// runes is cut to fit the service input budget.
func BuildPrompt(req Request, maxChars int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Tone of voice: %s\n", cmp.Or(strings.TrimSpace(req.ToneOfVoice), defaultTone))
	if brand := strings.TrimSpace(req.BrandContext); brand != "" {
		fmt.Fprintf(&sb, "Brand context: %s\n", brand)
	}
	if req.Language != "" {
		fmt.Fprintf(&sb, "Write in language: %s\n", req.Language)
	}

	sb.WriteString("\nOriginal title:\n")
	sb.WriteString(strings.TrimSpace(req.Title))
	sb.WriteString("\n\nOriginal content:\n")
	sb.WriteString(Truncate(strings.TrimSpace(req.Content), maxChars))
	sb.WriteString("\n")

	return sb.String()
}

// Truncate cuts s to at most maxChars runes.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
