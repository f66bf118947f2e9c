// Package httpclient fetches small documents over HTTP with retries and
// W3C trace context propagation.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultMaxBodySize caps bodies read by Fetch.
const DefaultMaxBodySize = 1 << 20

// retryBackoff is multiplied by the attempt number.
const retryBackoff = 500 * time.Millisecond

// Client retries transport failures and 5xx answers.
type Client struct {
	hc          *http.Client
	maxRetries  int
	maxBodySize int64
}

// NewClient returns a client whose every attempt is bounded by timeout.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		hc:          &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		maxBodySize: DefaultMaxBodySize,
	}
}

// Fetch GETs url and returns the body. Non-2xx answers and bodies over the
// size limit are errors.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: status code %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", url, err)
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("GET %s: response exceeds %d bytes", url, c.maxBodySize)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
		injectTraceContext(req)

		resp, err := c.hc.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("GET %s: status code %d", url, resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt >= c.maxRetries {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}
}

// injectTraceContext adds traceparent when ctx carries a span.
func injectTraceContext(req *http.Request) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
}
