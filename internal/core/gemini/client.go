package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// APIVersion carries the Live, search grounding and video surfaces.
const APIVersion = "v1beta"

type Client struct {
	c      *genai.Client
	hc     *http.Client
	apiKey string
	log    *slog.Logger

	pollEvery time.Duration

	// backoff between retries of a transient failure
	backoff func(attempt int) time.Duration
}

type Option func(*options)

type options struct {
	baseURL string
	log     *slog.Logger
}

// WithBaseURL sends REST calls to another host, used against local fakes.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	o := options{log: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if apiKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	hc := &http.Client{Transport: tr, Timeout: 2 * time.Minute}
	reqTimeout := 90 * time.Second
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    o.baseURL,
			APIVersion: APIVersion,
			Timeout:    &reqTimeout,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		c:         cl,
		hc:        hc,
		apiKey:    apiKey,
		log:       o.log,
		pollEvery: 5 * time.Second,
		backoff: func(i int) time.Duration {
			return time.Duration(300*(i+1)) * time.Millisecond
		},
	}, nil
}

func (g *Client) Close() error { return nil }

// generate calls GenerateContent, retrying transient transport failures and
// empty responses up to three times.
func (g *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		resp, err := g.c.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			lastErr = err
			if retriable(err) {
				g.log.Warn("gemini: transient failure, retrying", "model", model, "attempt", i+1, "err", err)
				if !sleepCtx(ctx, g.backoff(i)) {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, err
		}
		if len(resp.Candidates) > 0 {
			return resp, nil
		}
		lastErr = errors.New("empty response")
		if !sleepCtx(ctx, g.backoff(i)) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected EOF") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "RST_STREAM") ||
		strings.Contains(s, "connection reset")
}
