package extract

import (
	"context"
	"testing"
)

type fakeTagger struct {
	spans []RawSpan
}

func (f *fakeTagger) Tag(ctx context.Context, text string) ([]RawSpan, error) {
	return f.spans, nil
}

func TestNERExtractorStripsPersonTitle(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "Dr. Jane Smith", Type: "PERSON"}}}
	n := NewNERExtractor(tagger)
	entities, err := n.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasEntity(entities, "Jane Smith", TypePerson) {
		t.Fatalf("expected title-stripped person entity, got %+v", entities)
	}
}

func TestNERExtractorMapsSpacyTypes(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{
		{Text: "San Francisco", Type: "GPE"},
		{Text: "Acme Corp", Type: "ORG"},
		{Text: "next Tuesday", Type: "DATE"},
	}}
	n := NewNERExtractor(tagger)
	entities, err := n.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasEntity(entities, "San Francisco", TypePlace) {
		t.Fatalf("expected place entity, got %+v", entities)
	}
	if !hasEntity(entities, "Acme Corp", TypeOrganization) {
		t.Fatalf("expected organization entity, got %+v", entities)
	}
	if !hasEntity(entities, "next Tuesday", TypeDate) {
		t.Fatalf("expected date entity, got %+v", entities)
	}
}

func TestNERExtractorRejectsModelNumberPersons(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "GPT-4", Type: "PERSON"}}}
	n := NewNERExtractor(tagger)
	entities, err := n.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 0 {
		t.Fatalf("expected model-number-shaped person span to be rejected, got %+v", entities)
	}
}

func TestNERExtractorRejectsFoodNames(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "Pizza", Type: "PERSON"}}}
	n := NewNERExtractor(tagger)
	entities, err := n.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 0 {
		t.Fatalf("expected food-name person span to be rejected, got %+v", entities)
	}
}

func TestNERExtractorReclassifiesProductBrandAsProduct(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "iPhone 15", Type: "PERSON"}}}
	n := NewNERExtractor(tagger)
	entities, err := n.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasEntity(entities, "iPhone 15", TypeProduct) {
		t.Fatalf("expected brand-prefixed person span reclassified as product, got %+v", entities)
	}
}

func TestNERExtractorEmitsNoRelationships(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "Jane Smith", Type: "PERSON"}}}
	n := NewNERExtractor(tagger)
	_, rels, err := n.ExtractWithRelationships(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rels != nil {
		t.Fatalf("expected NER extractor to emit no relationships, got %+v", rels)
	}
}
