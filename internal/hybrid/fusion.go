// Package hybrid implements spec.md §4.4: the weighted-linear merge of
// vector and BM25 candidates, and the reranking stage that follows it.
package hybrid

import "sort"

// Candidate is one row of a merged candidate set: an id plus its score
// from one or both retrieval branches.
type Candidate struct {
	ID    string
	Score float64
	// InVector/InText record which branch(es) admitted this id, so
	// the retrieval pipeline can derive retrieval_method (spec.md §4.5).
	InVector bool
	InText   bool
}

// Weights are the hybrid merge coefficients (spec.md §4.4): both
// non-negative, not both zero.
type Weights struct {
	Vector float64
	Text   float64
}

// Merge computes final(id) = wv·V.get(id,0) + wt·B.get(id,0) over the
// union of keys(vector) ∪ keys(text), sorted descending, structured
// after the teacher's RRFFusion.Fuse (map accumulation → sorted slice
// → deterministic tie-break) but with the scoring formula spec.md
// §4.4 requires in place of Reciprocal Rank Fusion.
func Merge(vector map[string]float64, text map[string]float64, w Weights) []Candidate {
	if len(vector) == 0 && len(text) == 0 {
		return nil
	}

	merged := make(map[string]*Candidate, len(vector)+len(text))
	getOrCreate := func(id string) *Candidate {
		if c, ok := merged[id]; ok {
			return c
		}
		c := &Candidate{ID: id}
		merged[id] = c
		return c
	}

	for id, v := range vector {
		c := getOrCreate(id)
		c.InVector = true
		c.Score += w.Vector * v
	}
	for id, v := range text {
		c := getOrCreate(id)
		c.InText = true
		c.Score += w.Text * v
	}

	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
