package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Fetcher retrieves raw feed payloads over HTTP. It never retries.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// MaxFeedBytes bounds the size of a feed response body
const MaxFeedBytes = 64 << 20

// NewFetcher returns a fetcher whose connect and overall request time are
// bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxBytes: MaxFeedBytes,
	}
}

// Fetch GETs url and returns the body of a 200 response. Any other outcome
// is a *FetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchFailure{Endpoint: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchFailure{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchFailure{
			Endpoint: url,
			Status:   resp.StatusCode,
			Err:      errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchFailure{Endpoint: url, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchFailure{Endpoint: url, Status: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", f.maxBytes)}
	}
	return body, nil
}
