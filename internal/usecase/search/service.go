// Package search is the query orchestrator: it checks the result
// cache, dispatches the two retrieval upstreams concurrently, fuses
// and filters their candidates, resolves versions for the requested
// as-of time and caches the final page.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
	"github.com/lumen-kb/knolens/internal/metrics"
	"github.com/lumen-kb/knolens/internal/usecase/fusion"
)

// Config tunes the orchestrator.
type Config struct {
	Weights      fusion.Weights
	QueryTimeout time.Duration
}

// Service coordinates one search query end to end.
type Service struct {
	lexical  LexicalSearcher
	semantic SemanticSearcher
	embed    Embedder
	cache    ResultCache
	access   AccessFilter
	versions VersionResolver
	items    ItemReader
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a query orchestrator.
func New(
	lexical LexicalSearcher,
	semantic SemanticSearcher,
	embed Embedder,
	cache ResultCache,
	access AccessFilter,
	versions VersionResolver,
	items ItemReader,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		lexical:  lexical,
		semantic: semantic,
		embed:    embed,
		cache:    cache,
		access:   access,
		versions: versions,
		items:    items,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Search runs one query and returns the ranked, access-filtered,
// version-resolved result page.
func (s *Service) Search(ctx context.Context, q *query.Query, p principal.Principal) (candidate.RankedResults, error) {
	start := s.now()
	res, err := s.search(ctx, q, p)

	class := string(q.Class())
	metrics.QueryDuration.WithLabelValues(class).Observe(s.now().Sub(start).Seconds())
	metrics.QueriesTotal.WithLabelValues(class, outcome(res, err)).Inc()
	return res, err
}

func (s *Service) search(ctx context.Context, q *query.Query, p principal.Principal) (candidate.RankedResults, error) {
	if cached := s.fromCache(ctx, q, p); cached != nil {
		return *cached, nil
	}

	asOf := q.AsOfOr(s.now().UTC())

	lex, sem, degraded, err := s.dispatch(ctx, q)
	if err != nil {
		return candidate.RankedResults{}, err
	}

	fused := fusion.Fuse(lex, sem, s.cfg.Weights.ForClass(q.Class()), q.TopK())

	kept, items, err := s.access.Filter(ctx, p, fused)
	if err != nil {
		return candidate.RankedResults{}, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	resolved := s.resolve(ctx, kept, items, asOf)

	res := candidate.RankedResults{
		Results:  paginate(resolved, q.Page()),
		Degraded: degraded,
		AsOf:     asOf,
	}

	if !degraded {
		if err := s.cache.PutQuery(ctx, q, p, res); err != nil {
			s.logger.Warn("Failed to cache result page", zap.Error(err))
		}
	}
	return res, nil
}

// fromCache returns a validated cached page, or nil to recompute.
// Cache errors degrade to a miss. A page whose item hashes no longer
// match current content, or whose scopes the principal can no longer
// read, is treated as stale.
func (s *Service) fromCache(ctx context.Context, q *query.Query, p principal.Principal) *candidate.RankedResults {
	cached, err := s.cache.GetQuery(ctx, q, p)
	if err != nil {
		s.logger.Warn("Result cache lookup failed", zap.Error(err))
		return nil
	}
	if cached == nil {
		return nil
	}
	if len(cached.Results) == 0 {
		return cached
	}

	items, err := s.items.Items(ctx, cached.ItemIDs())
	if err != nil {
		s.logger.Warn("Cache revalidation failed", zap.Error(err))
		return nil
	}

	pinned := q.AsOf() != nil
	for _, r := range cached.Results {
		item, ok := items[r.ItemID]
		if !ok {
			return nil
		}
		if !p.CanRead(item.Scope) {
			return nil
		}
		// a "now" page must reference current content
		if !pinned && item.Hash != r.Hash {
			return nil
		}
	}
	return cached
}

// dispatch runs both retrieval upstreams concurrently and applies the
// partial-failure policy: one upstream down degrades the response,
// both down fails it, a deadline breach fails it without caching.
func (s *Service) dispatch(ctx context.Context, q *query.Query) (lex, sem []candidate.Candidate, degraded bool, err error) {
	dctx := ctx
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	var lexErr, semErr error
	g := new(errgroup.Group)

	g.Go(func() error {
		start := s.now()
		lex, lexErr = s.lexical.TopK(dctx, q, q.TopK())
		metrics.UpstreamDuration.WithLabelValues("lexical").Observe(s.now().Sub(start).Seconds())
		return nil
	})

	g.Go(func() error {
		start := s.now()
		emb, embErr := s.embed.Embed(dctx, q.Normalized())
		if embErr != nil {
			semErr = fmt.Errorf("vectorize query: %w", embErr)
		} else {
			sem, semErr = s.semantic.TopK(dctx, q, emb.Embedding, q.TopK())
		}
		metrics.UpstreamDuration.WithLabelValues("semantic").Observe(s.now().Sub(start).Seconds())
		return nil
	})

	_ = g.Wait()

	// a client abort fails both branches with Canceled; that is not an
	// upstream outage and must not count as one
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, nil, false, fmt.Errorf("search canceled: %w", context.Canceled)
	}

	if isTimeout(lexErr) || isTimeout(semErr) {
		return nil, nil, false, fmt.Errorf("%w: deadline elapsed before fusion", domain.ErrUpstreamTimeout)
	}

	if lexErr != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues("lexical").Inc()
		s.logger.Warn("Lexical upstream failed", zap.Error(lexErr))
	}
	if semErr != nil {
		metrics.UpstreamFailuresTotal.WithLabelValues("semantic").Inc()
		s.logger.Warn("Semantic upstream failed", zap.Error(semErr))
	}

	switch {
	case lexErr != nil && semErr != nil:
		return nil, nil, false, fmt.Errorf("%w: lexical: %v; semantic: %v", domain.ErrUpstreamUnavailable, lexErr, semErr)
	case lexErr != nil || semErr != nil:
		return lex, sem, true, nil
	}
	return lex, sem, false, nil
}

// resolve pins every kept candidate to the version valid at asOf.
// Candidates with no valid version are dropped and logged, never
// failing the whole request.
func (s *Service) resolve(
	ctx context.Context, kept []candidate.Candidate, items map[string]domain.ContentItem, asOf time.Time,
) []candidate.Resolved {
	out := make([]candidate.Resolved, 0, len(kept))
	for _, c := range kept {
		v, err := s.versions.Resolve(ctx, c.ItemID, asOf)
		if err != nil {
			if errors.Is(err, domain.ErrNoValidVersion) {
				metrics.DroppedCandidatesTotal.WithLabelValues("no_valid_version").Inc()
				s.logger.Warn("Dropping candidate without valid version",
					zap.String("item_id", c.ItemID), zap.Time("as_of", asOf))
				continue
			}
			s.logger.Warn("Version resolution failed, dropping candidate",
				zap.String("item_id", c.ItemID), zap.Error(err))
			continue
		}

		item := items[c.ItemID]
		out = append(out, candidate.Resolved{
			ItemID:     c.ItemID,
			VersionID:  v.VersionID,
			Hash:       v.Hash,
			Summary:    v.Summary,
			CategoryID: item.CategoryID,
			Tags:       item.Tags,
			Score:      c.Fused,
			ValidFrom:  v.ValidFrom,
		})
	}
	return out
}

func paginate(resolved []candidate.Resolved, p query.Page) []candidate.Resolved {
	if p.Offset >= len(resolved) {
		return nil
	}
	end := p.Offset + p.Size
	if end > len(resolved) {
		end = len(resolved)
	}
	return resolved[p.Offset:end]
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func outcome(res candidate.RankedResults, err error) string {
	switch {
	case err == nil && res.Degraded:
		return "degraded"
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
