// Package semantic adapts the HNSW vector index into the orchestrator's
// embedding upstream.
package semantic

import (
	"context"
	"fmt"

	"github.com/lumen-kb/knolens/internal/db"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/query"
	"github.com/lumen-kb/knolens/internal/repository/content"
)

// store is the consumer interface for KNN search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements the orchestrator's semantic upstream contract.
type Repo struct {
	store    store
	minScore float64
}

// New creates a semantic search repository. Hits scoring below minScore
// on the similarity axis are dropped before fusion.
func New(s store, minScore float64) *Repo {
	return &Repo{store: s, minScore: minScore}
}

// TopK runs a KNN search with the given query embedding and returns up
// to k candidates scored on the semantic axis.
func (r *Repo) TopK(ctx context.Context, q *query.Query, vector []float32, k int) ([]candidate.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    content.IndexName,
		Prefilter:    content.Prefilter(q.Filters()),
		Vector:       vector,
		K:            k,
		ReturnFields: content.CandidateFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	out := make([]candidate.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < r.minScore {
			continue
		}
		c := content.ParseCandidate(entry)
		c.Semantic = entry.Score
		out = append(out, c)
	}
	return out, nil
}
