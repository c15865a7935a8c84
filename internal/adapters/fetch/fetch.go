// Package fetch retrieves raw records for a configured source. It is the
// only part of the pipeline that blocks on I/O.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/okian/civicwatch/internal/domain/adapter"
	"github.com/okian/civicwatch/internal/domain/model"
)

// maxBody caps how much of a response or fixture is read.
const maxBody = 32 << 20

// Fetcher returns the raw records currently published by a source. Errors
// wrap ErrTransient or ErrFatal.
type Fetcher interface {
	Fetch(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error)
}

// Func adapts a plain function to the Fetcher interface.
type Func func(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error)

// Fetch implements Fetcher.
func (f Func) Fetch(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error) {
	return f(ctx, cfg)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// NewHTTPClient returns a client tuned for feed polling.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// HTTPFetcher GETs cfg.URL and decodes a JSON array of records.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header sent to portals.
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher. Deadlines come from the context.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{client: NewHTTPClient(0), userAgent: "civicwatch/1.0"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher. Network failures and 5xx/429 responses are
// transient; other non-2xx statuses and undecodable bodies are fatal.
func (f *HTTPFetcher) Fetch(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: source %s has no url", ErrFatal, cfg.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFatal, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s returned %d", ErrTransient, cfg.URL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s returned %d", ErrFatal, cfg.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	return decode(cfg, body)
}

// FileFetcher reads records from cfg.Path. Used for fixtures and for feeds
// dropped on disk by an external scraper.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	fh, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	defer func() { _ = fh.Close() }()
	data, err := io.ReadAll(io.LimitReader(fh, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return decode(cfg, data)
}

func decode(cfg model.SourceConfig, data []byte) ([]adapter.Record, error) {
	recs, err := adapter.Decode(cfg.Type, data)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrFatal, cfg.ID, err)
	}
	return recs, nil
}

// Router picks the file fetcher when a source has a Path and the HTTP
// fetcher otherwise.
type Router struct {
	HTTP Fetcher
	File Fetcher
}

// NewRouter returns a Router with the default fetchers.
func NewRouter(opts ...HTTPOption) *Router {
	return &Router{HTTP: NewHTTPFetcher(opts...), File: FileFetcher{}}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, cfg model.SourceConfig) ([]adapter.Record, error) {
	if cfg.Path != "" {
		return r.File.Fetch(ctx, cfg)
	}
	return r.HTTP.Fetch(ctx, cfg)
}
