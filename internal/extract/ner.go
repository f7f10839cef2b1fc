package extract

import (
	"context"
	"regexp"
	"strings"
)

// RawSpan is one tagged span from an external NLP tagger, before
// title-stripping and post-processing (spec.md §4.7, extractor 2).
type RawSpan struct {
	Text string
	Type string // spaCy-style label: PERSON, GPE, ORG, DATE, EVENT, PRODUCT
}

// Tagger is the external natural-language tagger the NER extractor
// wraps. A real implementation would call out to a hosted or
// in-process NLP model; tests substitute a fixed-span fake.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]RawSpan, error)
}

// spacyTypeMap mirrors the teacher corpus's SPACY_TYPE_MAP: external
// tagger labels translated into this service's entity type vocabulary.
var spacyTypeMap = map[string]string{
	"PERSON": TypePerson,
	"GPE":    TypePlace,
	"LOC":    TypePlace,
	"ORG":    TypeOrganization,
	"DATE":   TypeDate,
	"EVENT":  TypeEvent,
	"PRODUCT": TypeProduct,
}

// personTitles are stripped from the front of PERSON spans before
// emission (spec.md §4.7).
var personTitles = []string{
	"mr.", "mr", "mrs.", "mrs", "ms.", "ms", "dr.", "dr",
	"prof.", "prof", "sir", "madam", "miss",
}

func stripTitle(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	first := strings.ToLower(strings.TrimSuffix(fields[0], "."))
	for _, title := range personTitles {
		if strings.TrimSuffix(title, ".") == first {
			return strings.TrimSpace(strings.Join(fields[1:], " "))
		}
	}
	return name
}

// modelNumberPattern rejects PERSON spans that are actually
// letter+digit model numbers ("GPT-4", "iPhone15").
var modelNumberPattern = regexp.MustCompile(`^[A-Za-z]+[\-\s]?\d+[A-Za-z0-9]*$`)

// productTokens flags PERSON spans that are really product mentions.
var productTokens = map[string]struct{}{
	"pro": {}, "max": {}, "mini": {}, "plus": {}, "ultra": {}, "edition": {},
}

// foodNames is the curated list NER post-processing rejects outright.
var foodNames = map[string]struct{}{
	"pizza": {}, "sushi": {}, "burger": {}, "taco": {}, "pasta": {},
	"sandwich": {}, "salad": {}, "curry": {}, "noodles": {},
}

// productBrands reclassifies a PERSON span to product when its first
// word hits a known consumer brand.
var productBrands = map[string]struct{}{
	"iphone": {}, "macbook": {}, "galaxy": {}, "pixel": {}, "surface": {},
	"playstation": {}, "xbox": {}, "kindle": {},
}

// NERExtractor converts tagged spans into validated entities, fixing
// up common PERSON misclassifications (spec.md §4.7, extractor 2).
// It emits no relationships.
type NERExtractor struct {
	tagger    Tagger
	validator *Validator
}

func NewNERExtractor(tagger Tagger) *NERExtractor {
	return &NERExtractor{tagger: tagger, validator: NewValidator()}
}

var _ Extractor = (*NERExtractor)(nil)

func (n *NERExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	spans, err := n.tagger.Tag(ctx, text)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]Entity)
	for _, span := range spans {
		entityType, ok := spacyTypeMap[span.Type]
		if !ok {
			continue
		}

		name := strings.TrimSpace(span.Text)
		if entityType == TypePerson {
			name = stripTitle(name)
			if name == "" {
				continue
			}
			lower := strings.ToLower(name)
			firstWord := strings.Fields(lower)[0]

			_, isBrand := productBrands[firstWord]
			if isBrand {
				entityType = TypeProduct
			} else {
				if modelNumberPattern.MatchString(name) {
					continue
				}
				if _, isProductWord := productTokens[firstWord]; isProductWord {
					continue
				}
				if _, isFood := foodNames[lower]; isFood {
					continue
				}
			}
		}

		e := Entity{Name: name, Type: entityType}
		if n.validator.ValidEntity(e) {
			seen[strings.ToLower(e.Name)+"|"+e.Type] = e
		}
	}

	out := make([]Entity, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out, nil
}

func (n *NERExtractor) ExtractWithRelationships(ctx context.Context, text string) ([]Entity, []Relationship, error) {
	entities, err := n.Extract(ctx, text)
	return entities, nil, err
}
