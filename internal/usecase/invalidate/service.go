// Package invalidate reacts to content-change events from the
// ingestion collaborator: it maintains the version history of changed
// items and eagerly evicts every cached result page that referenced
// them. Freshness wins over hit rate.
package invalidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/domain"
)

// ChangeEvent is one content creation or update notification.
type ChangeEvent struct {
	ItemID     string
	Text       string
	Summary    string
	OwnerID    string
	CategoryID string
	Tags       []string
	Scope      domain.Scope
	At         time.Time
}

// Service applies content-change events to the read model and cache.
type Service struct {
	content ContentStore
	embed   Embedder
	cache   ResultCache
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an invalidation service.
func New(content ContentStore, embed Embedder, cache ResultCache, logger *zap.Logger) *Service {
	return &Service{content: content, embed: embed, cache: cache, logger: logger, now: time.Now}
}

// ContentChanged ingests a creation/update event. Re-ingesting text
// with an unchanged content hash is a no-op for versions and vectors;
// only item metadata is refreshed. A real text change closes the open
// version, snapshots a new one and evicts affected cache pages.
func (s *Service) ContentChanged(ctx context.Context, ev ChangeEvent) error {
	if ev.ItemID == "" || ev.Text == "" {
		return fmt.Errorf("%w: change event requires item id and text", domain.ErrInvalidQuery)
	}
	at := ev.At
	if at.IsZero() {
		at = s.now().UTC()
	}

	hash := domain.ContentHash(ev.Text)
	item := domain.ContentItem{
		ID:         ev.ItemID,
		Hash:       hash,
		OwnerID:    ev.OwnerID,
		CategoryID: ev.CategoryID,
		Tags:       ev.Tags,
		Scope:      ev.Scope,
	}

	existing, err := s.content.GetItem(ctx, ev.ItemID)
	if err != nil && !errors.Is(err, domain.ErrItemNotFound) {
		return fmt.Errorf("load item %s: %w", ev.ItemID, err)
	}
	if err == nil && existing.Hash == hash {
		// identical text: refresh metadata, keep version history intact
		if err := s.content.PutItem(ctx, item); err != nil {
			return fmt.Errorf("refresh item %s: %w", ev.ItemID, err)
		}
		return nil
	}

	emb, err := s.embed.Embed(ctx, ev.Text)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmbeddingProviderError, err)
	}

	if _, err := s.content.CloseOpenVersion(ctx, ev.ItemID, at); err != nil && !errors.Is(err, domain.ErrNoValidVersion) {
		return fmt.Errorf("close open version %s: %w", ev.ItemID, err)
	}

	version := domain.ContentVersion{
		ItemID:    ev.ItemID,
		VersionID: versionID(hash, at),
		Text:      ev.Text,
		Summary:   ev.Summary,
		Vector:    emb.Embedding,
		Hash:      hash,
		ValidFrom: at,
	}

	if err := s.content.PutItem(ctx, item); err != nil {
		return fmt.Errorf("put item %s: %w", ev.ItemID, err)
	}
	if err := s.content.PutVersion(ctx, version); err != nil {
		return fmt.Errorf("put version %s: %w", version.VersionID, err)
	}
	if err := s.content.PutDoc(ctx, item, version); err != nil {
		return fmt.Errorf("index version %s: %w", version.VersionID, err)
	}

	s.evict(ctx, ev.ItemID)
	return nil
}

// Retire closes the item's open version without a successor and
// removes its document from the search index.
func (s *Service) Retire(ctx context.Context, itemID string, at time.Time) error {
	if at.IsZero() {
		at = s.now().UTC()
	}

	if _, err := s.content.CloseOpenVersion(ctx, itemID, at); err != nil {
		if errors.Is(err, domain.ErrNoValidVersion) {
			// already retired; invalidation below is an idempotent no-op
			s.logger.Info("Retire on already retired item", zap.String("item_id", itemID))
		} else {
			return fmt.Errorf("close open version %s: %w", itemID, err)
		}
	}

	if err := s.content.DeleteDoc(ctx, itemID); err != nil {
		return fmt.Errorf("deindex item %s: %w", itemID, err)
	}

	s.evict(ctx, itemID)
	return nil
}

// Invalidate is the administrative cache eviction operation. Duplicate
// invalidations are harmless.
func (s *Service) Invalidate(ctx context.Context, itemID string) (int, error) {
	n, err := s.cache.Invalidate(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("invalidate item %s: %w", itemID, err)
	}
	s.logger.Info("Invalidated cached pages", zap.String("item_id", itemID), zap.Int("entries", n))
	return n, nil
}

// evict is best-effort-at-least-once: a failed eviction is logged and
// retried implicitly by lazy TTL expiry and read-time revalidation.
func (s *Service) evict(ctx context.Context, itemID string) {
	if _, err := s.cache.Invalidate(ctx, itemID); err != nil {
		s.logger.Warn("Cache invalidation failed", zap.String("item_id", itemID), zap.Error(err))
	}
}

func versionID(hash string, at time.Time) string {
	return fmt.Sprintf("%s-%d", hash[:8], at.UnixMilli())
}
