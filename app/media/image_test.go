package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/content-forge/app/cfg"
)

type memoryStore struct {
	objects map[string][]byte
	err     error
}

func (m *memoryStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func serveBytes(data []byte, contentType string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}))
}

func newTestPipeline(store ObjectStore) *ImagePipeline {
	return NewImagePipeline(nil, store, cfg.DefaultPipeline().Images, "test-agent")
}

func TestStore_ResizesAndUploads(t *testing.T) {
	server := serveBytes(pngBytes(t, 2400, 1200), "image/png")
	defer server.Close()

	store := &memoryStore{}
	url := newTestPipeline(store).Store(context.Background(), server.URL+"/a.png", "site-1", "item-1")

	assert.Equal(t, "https://cdn.example.com/sites/site-1/articles/item-1.jpg", url)
	data, ok := store.objects["sites/site-1/articles/item-1.jpg"]
	require.True(t, ok)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
}

func TestStore_Overwrites(t *testing.T) {
	server := serveBytes(pngBytes(t, 10, 10), "image/png")
	defer server.Close()

	store := &memoryStore{objects: map[string][]byte{Key("s", "i"): []byte("old")}}
	url := newTestPipeline(store).Store(context.Background(), server.URL, "s", "i")

	assert.NotEmpty(t, url)
	assert.NotEqual(t, []byte("old"), store.objects[Key("s", "i")])
}

func TestStore_NeverUpscales(t *testing.T) {
	server := serveBytes(pngBytes(t, 300, 200), "image/png")
	defer server.Close()

	data, err := newTestPipeline(&memoryStore{}).Process(context.Background(), server.URL)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestStore_FailuresReturnEmpty(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	garbage := serveBytes([]byte("definitely not an image"), "image/png")
	defer garbage.Close()

	valid := serveBytes(pngBytes(t, 10, 10), "image/png")
	defer valid.Close()

	tests := []struct {
		name  string
		url   string
		store *memoryStore
	}{
		{"empty url", "", &memoryStore{}},
		{"http error", notFound.URL, &memoryStore{}},
		{"undecodable", garbage.URL, &memoryStore{}},
		{"unreachable", "http://127.0.0.1:1/image.png", &memoryStore{}},
		{"storage failure", valid.URL, &memoryStore{err: errors.New("bucket gone")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := newTestPipeline(tt.store).Store(context.Background(), tt.url, "s", "i")
			assert.Empty(t, url)
		})
	}
}

func TestStore_NoStoreConfigured(t *testing.T) {
	p := NewImagePipeline(nil, nil, cfg.DefaultPipeline().Images, "ua")
	assert.Empty(t, p.Store(context.Background(), "https://example.com/a.png", "s", "i"))
}

func TestProcess_SizeLimit(t *testing.T) {
	settings := cfg.DefaultPipeline().Images
	settings.MaxBytes = 1024

	declared := serveBytes(make([]byte, 4096), "image/png")
	defer declared.Close()

	chunked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			_, _ = w.Write(make([]byte, 1024))
			flusher.Flush()
		}
	}))
	defer chunked.Close()

	p := NewImagePipeline(nil, &memoryStore{}, settings, "ua")

	_, err := p.Process(context.Background(), declared.URL)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = p.Process(context.Background(), chunked.URL)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestResize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 333))

	resized := Resize(img, 500)
	assert.Equal(t, 500, resized.Bounds().Dx())
	assert.Equal(t, 166, resized.Bounds().Dy())

	assert.Same(t, img, Resize(img, 1200))
	assert.Same(t, img, Resize(img, 0))
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBaseURL(S3Config{PublicBaseURL: "https://cdn.example.com/"}))
	assert.Equal(t, "http://minio:9000/images", publicBaseURL(S3Config{Endpoint: "minio:9000", Bucket: "images"}))
	assert.Equal(t, "https://s3.example.com/images", publicBaseURL(S3Config{Endpoint: "s3.example.com", Bucket: "images", UseSSL: true}))
}

func TestStore_DownloadTimeout(t *testing.T) {
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer stalled.Close()

	settings := cfg.DefaultPipeline().Images
	settings.Timeout = 50 * time.Millisecond
	store := &memoryStore{}
	p := NewImagePipeline(nil, store, settings, "ua")

	start := time.Now()
	url := p.Store(context.Background(), stalled.URL, "s", "i")

	assert.Empty(t, url)
	assert.Empty(t, store.objects)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcess_PixelLimit(t *testing.T) {
	settings := cfg.DefaultPipeline().Images
	settings.MaxPixels = 100

	wide := serveBytes(pngBytes(t, 20, 10), "image/png")
	defer wide.Close()
	small := serveBytes(pngBytes(t, 10, 10), "image/png")
	defer small.Close()

	p := NewImagePipeline(nil, &memoryStore{}, settings, "ua")

	_, err := p.Process(context.Background(), wide.URL)
	assert.ErrorIs(t, err, ErrImageTooManyPixels)

	_, err = p.Process(context.Background(), small.URL)
	assert.NoError(t, err)

	store := &memoryStore{}
	assert.Empty(t, NewImagePipeline(nil, store, settings, "ua").Store(context.Background(), wide.URL, "s", "i"))
	assert.Empty(t, store.objects)
}
