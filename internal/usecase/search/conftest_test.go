package search

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
	"github.com/lumen-kb/knolens/internal/usecase/fusion"
)

type mockLexical struct {
	result []candidate.Candidate
	err    error
	calls  int
}

func (m *mockLexical) TopK(_ context.Context, _ *query.Query, _ int) ([]candidate.Candidate, error) {
	m.calls++
	return m.result, m.err
}

type mockSemantic struct {
	result []candidate.Candidate
	err    error
	calls  int
	vector []float32
}

func (m *mockSemantic) TopK(_ context.Context, _ *query.Query, vector []float32, _ int) ([]candidate.Candidate, error) {
	m.calls++
	m.vector = vector
	return m.result, m.err
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

type mockCache struct {
	entry *candidate.RankedResults
	getErr error
	putErr error
	puts   []candidate.RankedResults
}

func (m *mockCache) GetQuery(_ context.Context, _ *query.Query, _ principal.Principal) (*candidate.RankedResults, error) {
	return m.entry, m.getErr
}

func (m *mockCache) PutQuery(_ context.Context, _ *query.Query, _ principal.Principal, res candidate.RankedResults) error {
	m.puts = append(m.puts, res)
	return m.putErr
}

// mockItems backs both the access filter and cache revalidation.
type mockItems struct {
	items map[string]domain.ContentItem
	err   error
}

func (m *mockItems) Items(_ context.Context, itemIDs []string) (map[string]domain.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]domain.ContentItem)
	for _, id := range itemIDs {
		if item, ok := m.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

// passFilter keeps every candidate whose item exists.
type passFilter struct {
	items *mockItems
	err   error
}

func (f *passFilter) Filter(ctx context.Context, _ principal.Principal, cands []candidate.Candidate) ([]candidate.Candidate, map[string]domain.ContentItem, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ItemID)
	}
	items, _ := f.items.Items(ctx, ids)
	kept := make([]candidate.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := items[c.ItemID]; ok {
			kept = append(kept, c)
		}
	}
	return kept, items, nil
}

type mockVersions struct {
	versions map[string]domain.ContentVersion
	err      error
}

func (m *mockVersions) Resolve(_ context.Context, itemID string, _ time.Time) (domain.ContentVersion, error) {
	if m.err != nil {
		return domain.ContentVersion{}, m.err
	}
	v, ok := m.versions[itemID]
	if !ok {
		return domain.ContentVersion{}, domain.ErrNoValidVersion
	}
	return v, nil
}

// fixture wires a service around mutable mocks.
type fixture struct {
	lex      *mockLexical
	sem      *mockSemantic
	embed    *mockEmbedder
	cache    *mockCache
	items    *mockItems
	versions *mockVersions
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lex:      &mockLexical{},
		sem:      &mockSemantic{},
		embed:    &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}},
		cache:    &mockCache{},
		items:    &mockItems{items: make(map[string]domain.ContentItem)},
		versions: &mockVersions{versions: make(map[string]domain.ContentVersion)},
	}
	f.svc = New(
		f.lex, f.sem, f.embed, f.cache,
		&passFilter{items: f.items}, f.versions, f.items,
		Config{Weights: fusion.Weights{Semantic: 0.7, Lexical: 0.3}, QueryTimeout: time.Second},
		zap.NewNop(),
	)
	return f
}

// addItem registers an item with a current version resolvable at any time.
func (f *fixture) addItem(id string, score float64) {
	f.items.items[id] = domain.ContentItem{ID: id, Hash: "h-" + id, CategoryID: "kb"}
	f.versions.versions[id] = domain.ContentVersion{
		ItemID:    id,
		VersionID: id + "-v1",
		Hash:      "h-" + id,
		Summary:   "summary of " + id,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_ = score
}

func mustQuery(t *testing.T, raw string) *query.Query {
	t.Helper()
	q, err := query.New(raw, query.Filters{}, query.Page{}, 0, nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return &q
}

func mustPrincipal(t *testing.T) principal.Principal {
	t.Helper()
	p, err := principal.New("acme", []string{"dev"})
	if err != nil {
		t.Fatalf("principal.New: %v", err)
	}
	return p
}
