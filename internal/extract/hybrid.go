package extract

import (
	"context"
	"strings"
)

// HybridExtractor unions the regex and NER extractors' entities and
// gates relationship extraction on the construction-time extraction
// context (spec.md §4.7, extractor 3). The default context is
// personal, which emits no relationships — a safety bias against
// inferring software-architecture edges from ordinary conversation.
type HybridExtractor struct {
	regex   *RegexExtractor
	ner     *NERExtractor
	context ExtractionContext
}

// NewHybridExtractor builds the union extractor. tagger may be nil,
// in which case NER contributes no entities and the extractor falls
// back to regex-only behavior.
func NewHybridExtractor(tagger Tagger, extractionContext ExtractionContext) *HybridExtractor {
	if extractionContext == "" {
		extractionContext = ContextPersonal
	}
	h := &HybridExtractor{
		regex:   NewRegexExtractor(),
		context: extractionContext,
	}
	if tagger != nil {
		h.ner = NewNERExtractor(tagger)
	}
	return h
}

var _ Extractor = (*HybridExtractor)(nil)

func (h *HybridExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	entities, _, err := h.ExtractWithRelationships(ctx, text)
	return entities, err
}

func (h *HybridExtractor) ExtractWithRelationships(ctx context.Context, text string) ([]Entity, []Relationship, error) {
	regexEntities, regexRelationships, err := h.regex.ExtractWithRelationships(ctx, text)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]Entity, len(regexEntities))
	for _, e := range regexEntities {
		seen[strings.ToLower(e.Name)+"|"+e.Type] = e
	}

	if h.ner != nil {
		nerEntities, err := h.ner.Extract(ctx, text)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range nerEntities {
			key := strings.ToLower(e.Name) + "|" + e.Type
			if _, exists := seen[key]; !exists {
				seen[key] = e
			}
		}
	}

	entities := make([]Entity, 0, len(seen))
	for _, e := range seen {
		entities = append(entities, e)
	}

	if h.context != ContextSoftware {
		return entities, nil, nil
	}
	return entities, regexRelationships, nil
}
