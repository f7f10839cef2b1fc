package embedprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LocalProvider is the local in-process model provider (spec.md §4.1):
// no network round-trip, embeds directly in the calling process. The
// production model backend is swappable via vectorFn; by default it
// reuses the same deterministic hash-composition algorithm as
// MockEmbedder at a configurable dimensionality, matching the
// teacher's dimension-compatible StaticEmbedder768 pattern used for
// seamless fallback between real and placeholder models.
type LocalProvider struct {
	mu         sync.RWMutex
	closed     bool
	dimensions int
	model      string
	vectorFn   func(text string) []float32
}

// NewLocalProvider constructs a LocalProvider at the given dimensionality.
func NewLocalProvider(dimensions int, model string) *LocalProvider {
	if dimensions <= 0 {
		dimensions = MockDimensions
	}
	if model == "" {
		model = fmt.Sprintf("local-hash-%d", dimensions)
	}
	p := &LocalProvider{dimensions: dimensions, model: model}
	p.vectorFn = p.defaultVector
	return p
}

func (p *LocalProvider) Dimensions() int   { return p.dimensions }
func (p *LocalProvider) ModelName() string { return p.model }
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *LocalProvider) Available(ctx context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("local provider is closed")
	}
	p.mu.RUnlock()

	text = TruncateUTF8(text, MaxTextBytes)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, p.dimensions), nil
	}
	return NormalizeVector(p.vectorFn(trimmed)), nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *LocalProvider) defaultVector(text string) []float32 {
	vector := make([]float32, p.dimensions)
	for _, token := range tokenize(text) {
		vector[hashToIndex(token, p.dimensions)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, p.dimensions)] += ngramWeight
	}
	return vector
}
