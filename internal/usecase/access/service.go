// Package access narrows a ranked candidate list to what the calling
// principal may read. Filtering is fail-closed: a candidate whose
// scope cannot be established is dropped, never served.
package access

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/metrics"
)

// Service evaluates candidate visibility against principal claims.
type Service struct {
	items  ItemReader
	logger *zap.Logger
}

// New creates an access filter service.
func New(items ItemReader, logger *zap.Logger) *Service {
	return &Service{items: items, logger: logger}
}

// Filter returns the candidates the principal may read, preserving
// rank order, together with the item metadata loaded along the way
// (the caller reuses it to build the response). Dropping a candidate
// is an expected outcome, not an error; only a storage failure fails
// the call.
func (s *Service) Filter(
	ctx context.Context, p principal.Principal, cands []candidate.Candidate,
) ([]candidate.Candidate, map[string]domain.ContentItem, error) {
	if len(cands) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		ids = append(ids, c.ItemID)
	}

	items, err := s.items.Items(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidate scopes: %w", err)
	}

	kept := make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		item, ok := items[c.ItemID]
		if !ok {
			// unknown scope: fail closed
			metrics.DroppedCandidatesTotal.WithLabelValues("access_denied").Inc()
			s.logger.Warn("Dropping candidate with unknown item", zap.String("item_id", c.ItemID))
			continue
		}
		if !p.CanRead(item.Scope) {
			metrics.DroppedCandidatesTotal.WithLabelValues("access_denied").Inc()
			continue
		}
		kept = append(kept, c)
	}
	return kept, items, nil
}
