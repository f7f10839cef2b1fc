package bm25store

import "strings"

// ftsOperatorChars are FTS5 query-syntax characters that must not
// reach MATCH unescaped from caller-supplied text (spec.md §4.3).
const ftsOperatorChars = `^*:()-+"`

// ftsBooleanKeywords are FTS5 bareword operators that must not reach
// MATCH as ordinary terms from caller-supplied text.
var ftsBooleanKeywords = map[string]struct{}{
	"AND": {}, "OR": {}, "NOT": {}, "NEAR": {},
}

// SanitizeQuery strips FTS5 operator-reserved punctuation, bareword
// boolean operators, and any quote, producing a plain bag-of-terms
// query. A query that sanitizes to nothing returns "" so the caller
// can short-circuit to an empty result rather than ask FTS5 to match
// a blank string.
func SanitizeQuery(query string) string {
	var b strings.Builder
	for _, r := range query {
		if r == '"' {
			continue
		}
		if strings.ContainsRune(ftsOperatorChars, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, f := range fields {
		if _, isOperator := ftsBooleanKeywords[strings.ToUpper(f)]; isOperator {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
