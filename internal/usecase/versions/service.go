// Package versions resolves which temporal snapshot of an item a query
// should see. Resolution against an explicit as-of instant makes
// results reproducible: identical queries at the same as-of time see
// identical snapshots regardless of cache state.
package versions

import (
	"context"
	"fmt"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

// Service resolves item versions against an as-of instant.
type Service struct {
	reader VersionReader
}

// New creates a version resolver.
func New(reader VersionReader) *Service {
	return &Service{reader: reader}
}

// Resolve returns the version whose [ValidFrom, ValidTo) interval
// contains asOf, or domain.ErrNoValidVersion when no interval covers
// it (item retired before asOf, or asOf predates the first version).
func (s *Service) Resolve(ctx context.Context, itemID string, asOf time.Time) (domain.ContentVersion, error) {
	history, err := s.reader.Versions(ctx, itemID)
	if err != nil {
		return domain.ContentVersion{}, fmt.Errorf("load history %s: %w", itemID, err)
	}

	for _, v := range history {
		if v.Covers(asOf) {
			return v, nil
		}
	}
	return domain.ContentVersion{}, fmt.Errorf("%w: item %s at %s", domain.ErrNoValidVersion, itemID, asOf.Format(time.RFC3339Nano))
}
