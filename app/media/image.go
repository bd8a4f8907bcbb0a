// Package media downloads, downsizes and re-hosts article images.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/lysyi3m/content-forge/app/cfg"
)

var (
	ErrImageTooLarge      = errors.New("image exceeds size limit")
	ErrImageTooManyPixels = errors.New("image exceeds pixel limit")
)

// ObjectStore uploads a blob, replacing any object already at key, and
// returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type ImagePipeline struct {
	httpClient *http.Client
	store      ObjectStore
	settings   cfg.ImageSettings
	userAgent  string
}

func NewImagePipeline(httpClient *http.Client, store ObjectStore, settings cfg.ImageSettings, userAgent string) *ImagePipeline {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ImagePipeline{
		httpClient: httpClient,
		store:      store,
		settings:   settings,
		userAgent:  userAgent,
	}
}

// Key is the storage path for an item's image.
func Key(siteID, itemID string) string {
	return fmt.Sprintf("sites/%s/articles/%s.jpg", siteID, itemID)
}

// Store re-hosts imageURL and returns the public URL, or "" when any step
// fails. Failures are logged, never returned.
func (p *ImagePipeline) Store(ctx context.Context, imageURL, siteID, itemID string) string {
	if imageURL == "" || p.store == nil {
		return ""
	}

	data, err := p.Process(ctx, imageURL)
	if err != nil {
		slog.Warn("Image processing failed", "site", siteID, "item_id", itemID, "url", imageURL, "error", err)
		return ""
	}

	publicURL, err := p.store.Put(ctx, Key(siteID, itemID), "image/jpeg", data)
	if err != nil {
		slog.Warn("Image upload failed", "site", siteID, "item_id", itemID, "error", err)
		return ""
	}

	slog.Debug("Image stored", "site", siteID, "item_id", itemID, "url", publicURL, "bytes", len(data))
	return publicURL
}

// Process downloads, decodes, downsizes and JPEG-encodes an image.
func (p *ImagePipeline) Process(ctx context.Context, imageURL string) ([]byte, error) {
	raw, err := p.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	header, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > p.settings.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooManyPixels, header.Width, header.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img = Resize(img, p.settings.MaxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.settings.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *ImagePipeline) download(ctx context.Context, imageURL string) ([]byte, error) {
	if p.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > p.settings.MaxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrImageTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.settings.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > p.settings.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, p.settings.MaxBytes)
	}
	return data, nil
}

// Resize scales img down to maxWidth keeping the aspect ratio. Narrower
// images are returned unchanged.
func Resize(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxWidth <= 0 || width <= maxWidth {
		return img
	}

	newHeight := max(height*maxWidth/width, 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
