package rules

import (
	"math"
	"sort"
)

// entry is an indexed paragraph with its vector and precomputed norm.
type entry struct {
	para Paragraph
	vec  []float32
	norm float64
}

func newEntry(p Paragraph, vec []float32) entry {
	return entry{para: p, vec: vec, norm: norm(vec)}
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of q (with norm qn) and e. Zero
// vectors and dimension mismatches score 0.
func cosine(q []float32, qn float64, e entry) float64 {
	if len(q) != len(e.vec) || qn == 0 || e.norm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(e.vec[i])
	}
	return dot / (qn * e.norm)
}

// topK scores every entry against q and returns the k best, ties kept in
// index order.
func topK(index []entry, q []float32, k int) []Match {
	qn := norm(q)
	matches := make([]Match, len(index))
	for i, e := range index {
		matches[i] = Match{Paragraph: e.para, Score: cosine(q, qn, e)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
