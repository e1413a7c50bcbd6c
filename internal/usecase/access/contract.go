package access

import (
	"context"

	"github.com/lumen-kb/knolens/internal/domain"
)

// ItemReader loads content item metadata (scope included) in batch.
type ItemReader interface {
	Items(ctx context.Context, itemIDs []string) (map[string]domain.ContentItem, error)
}
