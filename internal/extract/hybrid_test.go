package extract

import (
	"context"
	"testing"
)

func TestHybridExtractorDefaultsToPersonalContextAndEmitsNoRelationships(t *testing.T) {
	h := NewHybridExtractor(nil, "")
	_, rels, err := h.ExtractWithRelationships(context.Background(), "billing-service uses redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rels != nil {
		t.Fatalf("expected personal context to suppress relationships, got %+v", rels)
	}
}

func TestHybridExtractorSoftwareContextEmitsRelationships(t *testing.T) {
	h := NewHybridExtractor(nil, ContextSoftware)
	_, rels, err := h.ExtractWithRelationships(context.Background(), "billing-service uses redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rels) == 0 {
		t.Fatal("expected software context to emit relationships")
	}
}

func TestHybridExtractorUnionsRegexAndNEREntities(t *testing.T) {
	tagger := &fakeTagger{spans: []RawSpan{{Text: "Jane Smith", Type: "PERSON"}}}
	h := NewHybridExtractor(tagger, ContextPersonal)
	entities, err := h.Extract(context.Background(), "billing-service uses redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasEntity(entities, "billing-service", TypeService) {
		t.Fatalf("expected regex-sourced service entity, got %+v", entities)
	}
	if !hasEntity(entities, "redis", TypeTechnology) {
		t.Fatalf("expected regex-sourced technology entity, got %+v", entities)
	}
	if !hasEntity(entities, "Jane Smith", TypePerson) {
		t.Fatalf("expected NER-sourced person entity, got %+v", entities)
	}
}

func TestHybridExtractorWithNilTaggerFallsBackToRegexOnly(t *testing.T) {
	h := NewHybridExtractor(nil, ContextPersonal)
	entities, err := h.Extract(context.Background(), "billing-service uses redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) == 0 {
		t.Fatal("expected regex-only entities with nil tagger")
	}
}

func TestHybridExtractorDedupsExactNameTypePairs(t *testing.T) {
	// The same (name, type) pair reported twice surfaces as a single
	// entity; dedup keys on the lower-cased name plus the type.
	tagger := &fakeTagger{spans: []RawSpan{{Text: "Acme", Type: "ORG"}, {Text: "Acme", Type: "ORG"}}}
	h := NewHybridExtractor(tagger, ContextPersonal)
	entities, err := h.Extract(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	for _, e := range entities {
		if e.Name == "Acme" && e.Type == TypeOrganization {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exact (name, type) duplicates to dedup to one, got %d (%+v)", count, entities)
	}
}
