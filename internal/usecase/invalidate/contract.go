package invalidate

import (
	"context"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

// ContentStore is the read model's write surface used when reacting to
// content-change events.
type ContentStore interface {
	GetItem(ctx context.Context, itemID string) (domain.ContentItem, error)
	PutItem(ctx context.Context, item domain.ContentItem) error
	PutVersion(ctx context.Context, v domain.ContentVersion) error
	CloseOpenVersion(ctx context.Context, itemID string, at time.Time) (domain.ContentVersion, error)
	PutDoc(ctx context.Context, item domain.ContentItem, v domain.ContentVersion) error
	DeleteDoc(ctx context.Context, itemID string) error
}

// Embedder vectorizes new version text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache evicts cached pages that referenced a changed item.
type ResultCache interface {
	Invalidate(ctx context.Context, itemID string) (int, error)
}
