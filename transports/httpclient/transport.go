// Package httpclient is the default live transport, built on net/http with
// chunked progress reporting.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternhq/tern/pkg/contracts/v1/core"
)

// Config controls the live transport.
type Config struct {
	// Client defaults to a plain http.Client with Timeout applied.
	Client *http.Client
	// Timeout bounds one exchange; ignored when Client is supplied.
	Timeout time.Duration
	// ChunkBytes sets the body read granularity driving progress events.
	ChunkBytes int
}

// Transport performs live HTTP exchanges.
type Transport struct {
	client     *http.Client
	chunkBytes int
}

// New builds a transport with defaults suitable for production use.
func New(cfg Config) *Transport {
	if cfg.ChunkBytes < 1 {
		cfg.ChunkBytes = 32 * 1024
	}
	if cfg.Client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		cfg.Client = &http.Client{Timeout: timeout}
	}
	return &Transport{client: cfg.Client, chunkBytes: cfg.ChunkBytes}
}

// Send executes ep and streams body download progress. Byte counts are
// cumulative and non-decreasing; the terminal response is returned, not
// emitted as progress.
func (t *Transport) Send(ctx context.Context, ep core.Endpoint, onProgress func(core.ProgressEvent)) (*core.Response, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	var body io.Reader
	if len(ep.Body) > 0 {
		body = bytes.NewReader(ep.Body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range ep.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("send %s %s: %w", ep.Method, ep.URL, err)
	}
	defer resp.Body.Close()

	expected := resp.ContentLength
	if expected < 0 {
		expected = 0
	}

	var received bytes.Buffer
	buf := make([]byte, t.chunkBytes)
	var transferred int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			received.Write(buf[:n])
			transferred += int64(n)
			onProgress(core.ProgressEvent{BytesTransferred: transferred, BytesExpected: expected})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil, context.Canceled
			}
			return nil, fmt.Errorf("read body: %w", readErr)
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	return &core.Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       received.Bytes(),
	}, nil
}
