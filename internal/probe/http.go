package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxPageBytes = 8 << 20

// HTTPOptions parameterise the plain HTTP loader.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTPLoader fetches the raw HTML of a page without running scripts.
type HTTPLoader struct {
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPLoader constructs an HTTP page loader.
func NewHTTPLoader(opts HTTPOptions) *HTTPLoader {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPLoader{
		opts: opts,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Load performs a GET and returns the response body.
func (l *HTTPLoader) Load(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "hourswatch/1.0")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return string(body), nil
}

var _ PageLoader = (*HTTPLoader)(nil)
