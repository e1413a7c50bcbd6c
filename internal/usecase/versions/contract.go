package versions

import (
	"context"

	"github.com/lumen-kb/knolens/internal/domain"
)

// VersionReader loads the full version history of an item.
type VersionReader interface {
	Versions(ctx context.Context, itemID string) ([]domain.ContentVersion, error)
}
