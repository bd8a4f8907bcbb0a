package enrich

import (
	"cmp"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lysyi3m/content-forge/app/database"
)

const inlinePosition = 0.6

// InsertBacklink splices the site's backlink into content when the item's
// zero-based batch index is a multiple of the configured frequency. It
// reports whether anything was inserted.
func InsertBacklink(content string, settings *database.BacklinkSettings, index int) (string, bool) {
	if settings == nil || !settings.Enabled || strings.TrimSpace(settings.TargetURL) == "" {
		return content, false
	}

	frequency := max(settings.Frequency, 1)
	if index%frequency != 0 {
		return content, false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content, false
	}
	body := doc.Find("body")

	inserted := false
	switch settings.Placement {
	case database.PlacementInline:
		inserted = insertInline(body, settings)
	case database.PlacementBanner:
		inserted = appendBanner(body, settings)
	case database.PlacementBoth:
		inline := insertInline(body, settings)
		banner := appendBanner(body, settings)
		inserted = inline || banner
	default:
		return content, false
	}

	if !inserted {
		return content, false
	}

	out, err := body.Html()
	if err != nil {
		return content, false
	}
	return out, true
}

// insertInline places the anchor after the paragraph roughly 60% of the
// way through. Content without paragraphs gets the anchor at the end.
func insertInline(body *goquery.Selection, settings *database.BacklinkSettings) bool {
	anchor := fmt.Sprintf(`<p class="backlink">%s</p>`, anchorHTML(settings))

	paragraphs := body.Find("p")
	if paragraphs.Length() == 0 {
		body.AppendHtml(anchor)
		return true
	}

	position := int(math.Ceil(float64(paragraphs.Length())*inlinePosition)) - 1
	position = min(max(position, 0), paragraphs.Length()-1)
	paragraphs.Eq(position).AfterHtml(anchor)
	return true
}

func appendBanner(body *goquery.Selection, settings *database.BacklinkSettings) bool {
	var sb strings.Builder
	sb.WriteString(`<div class="backlink-banner" style="margin:2em 0;padding:1em;border:1px solid #ddd;border-radius:8px;text-align:center">`)
	if img := strings.TrimSpace(settings.BannerImageURL); img != "" {
		fmt.Fprintf(&sb, `<img src="%s" alt="" style="max-width:100%%;height:auto"/>`, html.EscapeString(img))
	}
	if text := strings.TrimSpace(settings.BannerText); text != "" {
		fmt.Fprintf(&sb, `<p>%s</p>`, html.EscapeString(text))
	}
	sb.WriteString(anchorHTML(settings))
	sb.WriteString(`</div>`)

	body.AppendHtml(sb.String())
	return true
}

func anchorHTML(settings *database.BacklinkSettings) string {
	text := cmp.Or(strings.TrimSpace(settings.LinkText), strings.TrimSpace(settings.BannerText), settings.TargetURL)
	return fmt.Sprintf(`<a href="%s" target="_blank" rel="sponsored noopener">%s</a>`,
		html.EscapeString(settings.TargetURL), html.EscapeString(text))
}
