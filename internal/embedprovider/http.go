package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPProvider is the remote HTTP embedding provider (spec.md §4.1, §6):
// POST to /embeddings with a bearer token, or an alternate base URL for
// locally hosted compatible servers (in which case the bearer may be
// absent). A circuit breaker guards against hammering a provider that
// is already failing.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	retry      RetryConfig
	breaker    *gobreaker.CircuitBreaker
}

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	BaseURL    string // e.g. "https://api.example.com/v1"
	APIKey     string // bearer token; optional when BaseURL points at a local server
	Model      string
	Dimensions int
	Timeout    time.Duration
	Retry      RetryConfig
}

// NewHTTPProvider constructs an HTTPProvider with a breaker that opens
// after 5 consecutive failures and probes again after 30s.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &HTTPProvider{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		retry:      cfg.Retry,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedding-provider",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (p *HTTPProvider) Dimensions() int    { return p.dimensions }
func (p *HTTPProvider) ModelName() string  { return p.model }
func (p *HTTPProvider) Close() error       { return nil }

func (p *HTTPProvider) Available(ctx context.Context) bool {
	return p.breaker.State() != gobreaker.StateOpen
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponseItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsResponse struct {
	Data []embeddingsResponseItem `json:"data"`
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = TruncateUTF8(t, MaxTextBytes)
	}

	var result [][]float32
	err := WithRetry(ctx, p.retry, func(ctx context.Context) (bool, time.Duration, error) {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			out, retryAfter, retryable, callErr := p.doRequest(ctx, truncated)
			if callErr != nil {
				if retryable {
					return nil, retryableErr{err: callErr, retryAfter: retryAfter}
				}
				return nil, permanentErr{err: callErr}
			}
			result = out
			return nil, nil
		})
		if err == nil {
			return false, 0, nil
		}
		if re, ok := err.(retryableErr); ok {
			return true, re.retryAfter, re.err
		}
		if pe, ok := err.(permanentErr); ok {
			return false, 0, pe.err
		}
		return false, 0, err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type retryableErr struct {
	err        error
	retryAfter time.Duration
}

func (e retryableErr) Error() string { return e.err.Error() }

type permanentErr struct{ err error }

func (e permanentErr) Error() string { return e.err.Error() }

// doRequest performs one HTTP call. It reports (vectors, retryAfter, retryable, error).
func (p *HTTPProvider) doRequest(ctx context.Context, texts []string) ([][]float32, time.Duration, bool, error) {
	body, err := json.Marshal(embeddingsRequest{Model: p.model, Input: texts, Dimensions: p.dimensions})
	if err != nil {
		return nil, 0, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, true, err // network error: transient
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, true, fmt.Errorf("embedding provider rate limited: %s", string(respBody))
	case resp.StatusCode >= 500:
		return nil, 0, true, fmt.Errorf("embedding provider server error %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		return nil, 0, false, fmt.Errorf("embedding provider request error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, 0, false, fmt.Errorf("malformed embedding response: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(out) {
			continue
		}
		out[item.Index] = NormalizeVector(item.Embedding)
	}
	return out, 0, false, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
