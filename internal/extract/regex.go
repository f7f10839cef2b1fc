package extract

import (
	"context"
	"regexp"
	"strings"
)

// serviceSuffixes are the kebab-case suffixes that mark a token as a
// service-shaped name outright (spec.md §4.7).
var serviceSuffixes = map[string]struct{}{
	"service": {}, "api": {}, "worker": {}, "db": {}, "cache": {},
	"server": {}, "client": {}, "gateway": {}, "proxy": {}, "database": {},
}

// servicePattern matches kebab-case tokens of at least two segments,
// e.g. "billing-service", "user-auth-api".
var servicePattern = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:-[a-z][a-z0-9]*)+\b`)

// technologies is the closed vocabulary the regex extractor recognizes
// as technology entities, matched case-insensitively as whole words.
var technologies = []string{
	"postgres", "postgresql", "mysql", "mongodb", "redis", "kafka",
	"rabbitmq", "elasticsearch", "docker", "kubernetes", "nginx",
	"grpc", "graphql", "rest", "typescript", "javascript", "python",
	"golang", "rust", "java", "sqlite", "dynamodb", "s3", "terraform",
}

var technologyPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(technologies, "|") + `)\b`)

// relationshipPatterns are ordered verb-phrase patterns (spec.md
// §4.7); each captures a source token before the verb phrase and a
// target token after it.
var relationshipPatterns = []struct {
	relation string
	re       *regexp.Regexp
}{
	{RelationUses, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+uses\s+([a-z][\w-]*)\b`)},
	{RelationConnectsTo, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+connects\s+to\s+([a-z][\w-]*)\b`)},
	{RelationStoresIn, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+stores\s+(?:data\s+)?in\s+([a-z][\w-]*)\b`)},
	{RelationDependsOn, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+depends\s+on\s+([a-z][\w-]*)\b`)},
	{RelationTalksTo, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+talks\s+to\s+([a-z][\w-]*)\b`)},
	{RelationCalls, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+calls\s+([a-z][\w-]*)\b`)},
	{RelationHandles, regexp.MustCompile(`(?i)\b([a-z][\w-]*)\s+handles\s+([a-z][\w-]*)\b`)},
}

// RegexExtractor recognizes kebab-case service names and a closed
// technology vocabulary, and extracts verb-phrase relationships
// between them (spec.md §4.7, extractor 1).
type RegexExtractor struct {
	validator *Validator
}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{validator: NewValidator()}
}

var _ Extractor = (*RegexExtractor)(nil)

func isServiceShaped(token string) bool {
	parts := strings.Split(token, "-")
	if len(parts) < 2 {
		return false
	}
	if _, ok := serviceSuffixes[parts[len(parts)-1]]; ok {
		return true
	}
	// Length/segment heuristic: 3+ segments, total length >= 8, reads
	// as a plausible compound service name even without a known suffix.
	return len(parts) >= 3 && len(token) >= 8
}

func (r *RegexExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	entities, _, err := r.ExtractWithRelationships(ctx, text)
	return entities, err
}

func (r *RegexExtractor) ExtractWithRelationships(ctx context.Context, text string) ([]Entity, []Relationship, error) {
	seen := make(map[string]Entity)

	for _, m := range servicePattern.FindAllString(text, -1) {
		if !isServiceShaped(m) {
			continue
		}
		e := Entity{Name: strings.ToLower(m), Type: TypeService}
		if r.validator.ValidEntity(e) {
			seen[e.Name] = e
		}
	}
	for _, m := range technologyPattern.FindAllStringSubmatch(text, -1) {
		e := Entity{Name: strings.ToLower(m[1]), Type: TypeTechnology}
		if r.validator.ValidEntity(e) {
			seen[e.Name] = e
		}
	}

	entities := make([]Entity, 0, len(seen))
	for _, e := range seen {
		entities = append(entities, e)
	}

	// Relationship endpoints are lower-cased the same way entities are,
	// so a source/target name always matches the identity a graph store
	// assigns it (spec.md §3) regardless of which pattern captured it.
	var relationships []Relationship
	for _, pattern := range relationshipPatterns {
		for _, m := range pattern.re.FindAllStringSubmatch(text, -1) {
			source := Entity{Name: strings.ToLower(m[1]), Type: guessType(m[1])}
			target := Entity{Name: strings.ToLower(m[2]), Type: guessType(m[2])}
			if !r.validator.ValidRelationship(source, target) {
				continue
			}
			relationships = append(relationships, Relationship{
				Source: source.Name, Target: target.Name, Relation: pattern.relation,
			})
		}
	}

	return entities, relationships, nil
}

// guessType classifies a relationship endpoint token as technology
// when it matches the technology vocabulary, and as service for every
// other token.
func guessType(token string) string {
	if technologyPattern.MatchString(token) {
		return TypeTechnology
	}
	return TypeService
}
