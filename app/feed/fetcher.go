package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxDocumentSize is the sitemap protocol limit, the largest document a
// source may legitimately serve.
const maxDocumentSize = 50 << 20

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	maxBytes   int64
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		maxBytes:   maxDocumentSize,
	}
}

// Fetch downloads a document. Timeouts, transport failures and non-2xx
// responses all come back as *FetchError, which matches ErrSourceUnreachable.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Cause: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("%w: declared %d bytes", ErrDocumentTooLarge, resp.ContentLength)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: url, Cause: fmt.Errorf("%w: over %d bytes", ErrDocumentTooLarge, f.maxBytes)}
	}

	return data, nil
}
