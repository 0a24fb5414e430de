package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotImage         = errors.New("remote content is not an image")
	ErrTooLarge         = errors.New("remote image exceeds the size limit")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Fetcher downloads remote images with a byte cap and a redirect cap
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(maxBytes int64, maxRedirects int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		maxBytes: maxBytes,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
	}
}

// Fetch returns the body and media type of an image URL
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w, %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, "", ErrNotImage
	}

	if resp.ContentLength > f.maxBytes {
		return nil, "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", err
	}

	if int64(len(data)) > f.maxBytes {
		return nil, "", ErrTooLarge
	}

	return data, mediaType, nil
}
