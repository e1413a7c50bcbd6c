// Package lexical adapts the FT.SEARCH BM25 index into the orchestrator's
// keyword upstream.
package lexical

import (
	"context"
	"fmt"

	"github.com/lumen-kb/knolens/internal/db"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/query"
	"github.com/lumen-kb/knolens/internal/repository/content"
)

// store is the consumer interface for BM25 search (ISP).
type store interface {
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo implements the orchestrator's lexical upstream contract.
type Repo struct {
	store store
}

// New creates a lexical search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// TopK runs a BM25 search over current-version documents and returns
// up to k candidates scored on the lexical axis.
func (r *Repo) TopK(ctx context.Context, q *query.Query, k int) ([]candidate.Candidate, error) {
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    content.IndexName,
		Prefilter:    content.Prefilter(q.Filters()),
		Query:        q.Normalized(),
		TopK:         k,
		ReturnFields: content.CandidateFields(),
	})
	if err != nil {
		return nil, fmt.Errorf("search bm25: %w", err)
	}

	out := make([]candidate.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		c := content.ParseCandidate(entry)
		c.Lexical = entry.Score
		out = append(out, c)
	}
	return out, nil
}
