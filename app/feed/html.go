package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// imageFromHTML resolves an image from a content fragment: an og:image
// meta tag first, then the first inline <img>.
func imageFromHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	if url := metaContent(doc.Selection, `meta[property="og:image"]`); url != "" {
		return url
	}
	return firstImage(doc.Selection)
}

func metaContent(sel *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if value, ok := sel.Find(selector).First().Attr("content"); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func firstImage(sel *goquery.Selection) string {
	var url string
	sel.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		url = src
		return false
	})
	return url
}

// sanitize strips active content from an extracted body in place.
func sanitize(sel *goquery.Selection) {
	sel.Find("script, style, iframe, noscript").Remove()

	sel.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	for _, node := range sel.Nodes {
		removeComments(node)
	}
}

func removeComments(node *html.Node) {
	for child := node.FirstChild; child != nil; {
		next := child.NextSibling
		if child.Type == html.CommentNode {
			node.RemoveChild(child)
		} else {
			removeComments(child)
		}
		child = next
	}
}

// PlainText returns the visible text of an HTML fragment with whitespace
// collapsed. Input that is not HTML passes through unchanged apart from
// whitespace.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style, noscript").Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}
