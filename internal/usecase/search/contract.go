package search

import (
	"context"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
)

// LexicalSearcher is the keyword retrieval upstream.
type LexicalSearcher interface {
	TopK(ctx context.Context, q *query.Query, k int) ([]candidate.Candidate, error)
}

// SemanticSearcher is the vector retrieval upstream.
type SemanticSearcher interface {
	TopK(ctx context.Context, q *query.Query, vector []float32, k int) ([]candidate.Candidate, error)
}

// Embedder vectorizes query text for the semantic branch.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache wraps the orchestrator's entry point. GetQuery returning
// (nil, nil) is a miss.
type ResultCache interface {
	GetQuery(ctx context.Context, q *query.Query, p principal.Principal) (*candidate.RankedResults, error)
	PutQuery(ctx context.Context, q *query.Query, p principal.Principal, res candidate.RankedResults) error
}

// AccessFilter narrows candidates to the principal's scope and returns
// the item metadata it loaded while deciding.
type AccessFilter interface {
	Filter(ctx context.Context, p principal.Principal, cands []candidate.Candidate) ([]candidate.Candidate, map[string]domain.ContentItem, error)
}

// VersionResolver picks the temporally valid snapshot of an item.
type VersionResolver interface {
	Resolve(ctx context.Context, itemID string, asOf time.Time) (domain.ContentVersion, error)
}

// ItemReader revalidates cached pages against current item hashes.
type ItemReader interface {
	Items(ctx context.Context, itemIDs []string) (map[string]domain.ContentItem, error)
}
