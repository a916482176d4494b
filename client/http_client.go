package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// ErrTooLarge is returned when a source exceeds the size limit.
var ErrTooLarge = errors.New("source exceeds maximum size")

// StatusError reports a non-2xx origin response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned status %d for %s", e.StatusCode, e.URL)
}

var httpClient = newHTTPClient(30 * time.Second)

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// SetTimeout replaces the shared client with one using the given overall timeout.
// It must be called before the server starts handling requests.
func SetTimeout(timeout time.Duration) {
	httpClient = newHTTPClient(timeout)
}

// Source is a fetched origin image.
type Source struct {
	Body []byte
	// MediaType is the parsed Content-Type without parameters, empty when the
	// origin sent none or an unparsable one.
	MediaType string
}

// Fetch downloads url, reading at most maxBytes of body. maxBytes <= 0 disables the limit.
func Fetch(ctx context.Context, url string, maxBytes int64) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/gif,image/heif,image/heic,image/*;q=0.8")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: content length %d", ErrTooLarge, resp.ContentLength)
	}

	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, ErrTooLarge
	}

	var mediaType string
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = parsed
		}
	}

	return &Source{Body: body, MediaType: mediaType}, nil
}
