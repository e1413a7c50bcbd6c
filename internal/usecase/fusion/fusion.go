// Package fusion merges the lexical and semantic candidate lists into
// one ranking. Scores from each upstream are min-max normalized over
// their own batch before weighting, so BM25 magnitudes and cosine
// similarities never compare raw against each other.
package fusion

import (
	"sort"

	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/query"
)

// Weights is the fused score policy: fused = Semantic*semNorm + Lexical*lexNorm.
type Weights struct {
	Semantic float64
	Lexical  float64
}

// ForClass adapts the configured weights to the query classification.
// Factual queries favor exact terms, so the weights swap; Conceptual
// and Mixed keep the configured semantic-leaning split.
func (w Weights) ForClass(c query.Class) Weights {
	if c == query.Factual {
		return Weights{Semantic: w.Lexical, Lexical: w.Semantic}
	}
	return w
}

// Fuse merges the two candidate lists into one ranking of at most
// limit entries. An item present in only one list scores 0 on the
// missing axis. Ties are broken by more recent ValidFrom, then by
// ascending item identifier, so the ranking is deterministic and
// independent of input order.
func Fuse(lexical, semantic []candidate.Candidate, w Weights, limit int) []candidate.Candidate {
	lexNorm := normalize(lexical, func(c candidate.Candidate) float64 { return c.Lexical })
	semNorm := normalize(semantic, func(c candidate.Candidate) float64 { return c.Semantic })

	merged := make(map[string]candidate.Candidate, len(lexical)+len(semantic))
	for i, c := range lexical {
		c.Lexical = lexNorm[i]
		merged[c.ItemID] = c
	}
	for i, c := range semantic {
		c.Semantic = semNorm[i]
		if prev, ok := merged[c.ItemID]; ok {
			c.Lexical = prev.Lexical
		}
		merged[c.ItemID] = c
	}

	out := make([]candidate.Candidate, 0, len(merged))
	for _, c := range merged {
		c.Fused = w.Semantic*c.Semantic + w.Lexical*c.Lexical
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Fused != b.Fused {
			return a.Fused > b.Fused
		}
		if !a.ValidFrom.Equal(b.ValidFrom) {
			return a.ValidFrom.After(b.ValidFrom)
		}
		return a.ItemID < b.ItemID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalize min-max scales one batch's scores to [0,1]. A batch whose
// scores are all equal (including a singleton) normalizes to 1.0:
// within its own list such a hit is the best available evidence.
func normalize(batch []candidate.Candidate, score func(candidate.Candidate) float64) []float64 {
	if len(batch) == 0 {
		return nil
	}

	lo, hi := score(batch[0]), score(batch[0])
	for _, c := range batch[1:] {
		s := score(c)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	out := make([]float64, len(batch))
	for i, c := range batch {
		if hi == lo {
			out[i] = 1.0
			continue
		}
		out[i] = (score(c) - lo) / (hi - lo)
	}
	return out
}
