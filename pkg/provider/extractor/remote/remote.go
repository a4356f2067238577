// Package remote provides an extractor.Provider backed by an acoustic
// analysis sidecar reachable over HTTP.
//
// The sidecar exposes two endpoints:
//
//	POST {base}/extract   multipart form, field "file" = mono 16-bit WAV
//	                      200 -> Feature Bundle JSON
//	                      422 -> signal cannot be analysed
//	GET  {base}/healthz   200 when the analysis engine is loaded
//
// Usage:
//
//	p, err := remote.New("http://localhost:8500",
//	    remote.WithTimeout(20*time.Second),
//	)
//	bundle, err := p.Extract(ctx, sig)
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/speakingbuddy/pkg/audio"
	"github.com/MrWong99/speakingbuddy/pkg/features"
	"github.com/MrWong99/speakingbuddy/pkg/provider/extractor"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBytes bounds the bundle JSON read from the sidecar.
	maxResponseBytes = 8 << 20
)

// Compile-time assertion that Provider implements extractor.Provider.
var _ extractor.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIKey sets a bearer token sent in the Authorization header.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithHTTPClient replaces the HTTP client. The client's transport is used as
// is; no tracing wrapper is added.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements extractor.Provider by delegating to the analysis
// sidecar.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the sidecar at baseURL (e.g.,
// "http://localhost:8500"). baseURL must be non-empty. Outgoing requests carry
// W3C trace context so sidecar spans join the caller's trace.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("remote: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Extract uploads sig as a WAV file and decodes the returned bundle.
func (p *Provider) Extract(ctx context.Context, sig audio.Signal) (*features.Bundle, error) {
	if sig.Len() == 0 {
		return nil, fmt.Errorf("remote: empty signal: %w", extractor.ErrUnanalyzable)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("remote: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(sig)); err != nil {
		return nil, fmt.Errorf("remote: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("remote: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("remote: read response body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("remote: %s: %w", errorDetail(data), extractor.ErrUnanalyzable)
	default:
		return nil, fmt.Errorf("remote: server returned HTTP %d: %s", resp.StatusCode, errorDetail(data))
	}

	b, err := features.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("remote: parse bundle: %w", err)
	}
	return b, nil
}

// Ping checks that the sidecar is up. It is suitable as a readiness check.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: ping: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// errorDetail extracts a short message from an error response body.
func errorDetail(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "no detail"
	}
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
