package extract

import (
	"strings"
	"unicode"
)

// DefaultMinNameLength is the lower bound on entity name length
// (spec.md §4.7).
const DefaultMinNameLength = 2

// maxNameLength bounds the other end of the validator's range.
const maxNameLength = 100

// allCapsStopwords are short all-caps words that are never entities
// even though they pass every other check (spec.md §4.7).
var allCapsStopwords = map[string]struct{}{
	"THE": {}, "AND": {}, "OR": {}, "FOR": {}, "BUT": {},
	"WOULD": {}, "BEFORE": {}, "AFTER": {}, "WITH": {}, "FROM": {},
	"INTO": {}, "ONTO": {}, "UPON": {}, "THIS": {}, "THAT": {},
	"THESE": {}, "THOSE": {}, "WHAT": {}, "WHEN": {}, "WHERE": {},
}

// commonWords rejects single-word "concept" candidates that are too
// generic to be useful graph nodes (spec.md §4.7).
var commonWords = map[string]struct{}{
	"thing": {}, "stuff": {}, "time": {}, "day": {}, "way": {},
	"work": {}, "part": {}, "place": {}, "case": {}, "point": {},
	"fact": {}, "idea": {}, "issue": {}, "problem": {}, "project": {},
}

// Validator applies the shared entity/relationship acceptance rules.
type Validator struct {
	MinNameLength int
}

func NewValidator() *Validator {
	return &Validator{MinNameLength: DefaultMinNameLength}
}

// ValidEntity applies spec.md §4.7's entity validator.
func (v *Validator) ValidEntity(e Entity) bool {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return false
	}

	minLen := v.MinNameLength
	if minLen <= 0 {
		minLen = DefaultMinNameLength
	}
	if len(name) < minLen || len(name) > maxNameLength {
		return false
	}

	hasAlpha := false
	allDigits := true
	for _, r := range name {
		if unicode.IsLetter(r) {
			hasAlpha = true
		}
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '-' && r != '_' {
			allDigits = false
		}
	}
	if !hasAlpha || allDigits {
		return false
	}

	if name == strings.ToUpper(name) {
		if _, stop := allCapsStopwords[name]; stop {
			return false
		}
	}

	if e.Type == TypeConcept && !strings.ContainsAny(name, " -_") {
		if _, common := commonWords[strings.ToLower(name)]; common {
			return false
		}
	}

	return true
}

// ValidRelationship requires both endpoints to pass ValidEntity and
// to differ under case-insensitive comparison (spec.md §4.7).
func (v *Validator) ValidRelationship(source, target Entity) bool {
	if !v.ValidEntity(source) || !v.ValidEntity(target) {
		return false
	}
	return !strings.EqualFold(source.Name, target.Name)
}
