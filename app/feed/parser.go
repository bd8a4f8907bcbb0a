package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS or Atom document. A feed without items is not an
// error; entries without a link are dropped since they cannot be deduped.
func (p *Parser) Run(data []byte) ([]Candidate, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	candidates := make([]Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		candidate := p.normalizeItem(item)
		if candidate.URL == "" {
			slog.Debug("Skipping feed item without link", "title", item.Title)
			continue
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Candidate {
	link := strings.TrimSpace(item.Link)
	if link == "" && isURL(item.GUID) {
		link = item.GUID
	}

	candidate := Candidate{
		Title:   strings.TrimSpace(item.Title),
		URL:     link,
		Content: cmp.Or(item.Content, item.Description),
		Author:  p.extractAuthor(item),
	}

	if item.PublishedParsed != nil {
		candidate.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		candidate.PublishedAt = item.UpdatedParsed
	}

	candidate.ImageURL = cmp.Or(
		mediaImage(item),
		enclosureImage(item),
		imageFromHTML(item.Content),
		imageFromHTML(item.Description),
	)

	return candidate
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		if s := formatAuthor(author.Name, author.Email); s != "" {
			return s
		}
	}
	if item.Author != nil {
		return formatAuthor(item.Author.Name, item.Author.Email)
	}
	return ""
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" {
		return name
	}
	return email
}

// mediaImage looks at media:content, media:thumbnail (also nested in
// media:group) and the itunes image. item.Image is not used: gofeed fills
// it from the first <img> of the description, which would outrank og:image.
func mediaImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		if url := mediaImageFrom(media); url != "" {
			return url
		}
		for _, group := range media["group"] {
			if url := mediaImageFrom(group.Children); url != "" {
				return url
			}
		}
	}

	if item.ITunesExt != nil {
		return strings.TrimSpace(item.ITunesExt.Image)
	}

	return ""
}

func mediaImageFrom(elements map[string][]ext.Extension) string {
	for _, content := range elements["content"] {
		url := strings.TrimSpace(content.Attrs["url"])
		if url == "" {
			continue
		}
		medium := content.Attrs["medium"]
		mimeType := content.Attrs["type"]
		if medium == "image" || strings.HasPrefix(mimeType, "image/") || (medium == "" && mimeType == "") {
			return url
		}
	}
	for _, thumbnail := range elements["thumbnail"] {
		if url := strings.TrimSpace(thumbnail.Attrs["url"]); url != "" {
			return url
		}
	}
	return ""
}

func enclosureImage(item *gofeed.Item) string {
	for _, enclosure := range item.Enclosures {
		if enclosure == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enclosure.Type), "image/") && enclosure.URL != "" {
			return strings.TrimSpace(enclosure.URL)
		}
	}
	return ""
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
