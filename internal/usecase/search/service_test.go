package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/query"
)

func TestSearch_FullPipeline(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.addItem("b", 0)
	f.lex.result = []candidate.Candidate{
		{ItemID: "a", Lexical: 0.2},
		{ItemID: "b", Lexical: 0.8},
		{ItemID: "lo", Lexical: 0.0},
		{ItemID: "hi", Lexical: 1.0},
	}
	f.sem.result = []candidate.Candidate{
		{ItemID: "a", Semantic: 0.9},
		{ItemID: "lo", Semantic: 0.0},
		{ItemID: "hi", Semantic: 1.0},
	}

	res, err := f.svc.Search(context.Background(), mustQuery(t, "how does cache invalidation propagate"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Degraded {
		t.Error("unexpected degraded flag")
	}

	// only a and b have items; anchors are filtered out
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
	if res.Results[0].ItemID != "a" || res.Results[1].ItemID != "b" {
		t.Errorf("unexpected ranking: %+v", res.Results)
	}
	if got := res.Results[0].Score; got < 0.689 || got > 0.691 {
		t.Errorf("fused score = %f, want 0.69", got)
	}
	if res.Results[0].VersionID != "a-v1" || res.Results[0].Summary != "summary of a" {
		t.Errorf("version resolution missing: %+v", res.Results[0])
	}
	if res.Results[0].CategoryID != "kb" {
		t.Errorf("item metadata missing: %+v", res.Results[0])
	}

	if len(f.cache.puts) != 1 {
		t.Fatalf("expected 1 cache put, got %d", len(f.cache.puts))
	}
	if f.sem.vector == nil {
		t.Error("semantic upstream never received the query embedding")
	}
}

func TestSearch_CacheHitSkipsUpstreams(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.cache.entry = &candidate.RankedResults{
		Results: []candidate.Resolved{{ItemID: "a", VersionID: "a-v1", Hash: "h-a"}},
		AsOf:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	res, err := f.svc.Search(context.Background(), mustQuery(t, "cached question"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ItemID != "a" {
		t.Errorf("cached page not served: %+v", res.Results)
	}
	if f.lex.calls != 0 || f.sem.calls != 0 {
		t.Errorf("upstreams called on cache hit: lex=%d sem=%d", f.lex.calls, f.sem.calls)
	}
	if len(f.cache.puts) != 0 {
		t.Error("cache hit should not rewrite the entry")
	}
}

func TestSearch_StaleHashForcesRecompute(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	// cached page references a superseded hash
	f.cache.entry = &candidate.RankedResults{
		Results: []candidate.Resolved{{ItemID: "a", VersionID: "a-v0", Hash: "h-old"}},
	}
	f.lex.result = []candidate.Candidate{{ItemID: "a", Lexical: 1.0}}

	res, err := f.svc.Search(context.Background(), mustQuery(t, "stale question"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if f.lex.calls == 0 {
		t.Error("stale cache entry should have forced a recompute")
	}
	if len(res.Results) != 1 || res.Results[0].Hash != "h-a" {
		t.Errorf("expected freshly resolved page, got %+v", res.Results)
	}
}

func TestSearch_PinnedAsOfHitSkipsHashCheck(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	// page pinned to an explicit as-of may reference an older hash
	f.cache.entry = &candidate.RankedResults{
		Results: []candidate.Resolved{{ItemID: "a", VersionID: "a-v0", Hash: "h-old"}},
	}

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	q, err := query.New("pinned question", query.Filters{}, query.Page{}, 0, &at)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	res, err := f.svc.Search(context.Background(), &q, mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if f.lex.calls != 0 {
		t.Error("pinned as-of hit should not recompute on hash drift")
	}
	if res.Results[0].Hash != "h-old" {
		t.Errorf("expected pinned snapshot, got %+v", res.Results)
	}
}

func TestSearch_OneUpstreamDownDegrades(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.lex.result = []candidate.Candidate{{ItemID: "a", Lexical: 1.0}}
	f.sem.err = errors.New("vector index unreachable")

	res, err := f.svc.Search(context.Background(), mustQuery(t, "degraded question"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded response")
	}
	if len(res.Results) != 1 || res.Results[0].ItemID != "a" {
		t.Errorf("expected lexical-only results, got %+v", res.Results)
	}
	if len(f.cache.puts) != 0 {
		t.Error("degraded response must not be cached")
	}
}

func TestSearch_EmbedderFailureDegradesSemanticBranch(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.lex.result = []candidate.Candidate{{ItemID: "a", Lexical: 1.0}}
	f.embed.err = errors.New("provider 500")

	res, err := f.svc.Search(context.Background(), mustQuery(t, "embedding down"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded response")
	}
	if f.sem.calls != 0 {
		t.Error("semantic upstream should not run without an embedding")
	}
}

func TestSearch_BothUpstreamsDownFails(t *testing.T) {
	f := newFixture(t)
	f.lex.err = errors.New("ft down")
	f.sem.err = errors.New("knn down")

	_, err := f.svc.Search(context.Background(), mustQuery(t, "dead question"), mustPrincipal(t))
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSearch_DeadlineBreachFailsWithoutCaching(t *testing.T) {
	f := newFixture(t)
	f.lex.err = context.DeadlineExceeded
	f.sem.result = []candidate.Candidate{{ItemID: "a", Semantic: 0.9}}

	_, err := f.svc.Search(context.Background(), mustQuery(t, "slow question"), mustPrincipal(t))
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Errorf("expected ErrUpstreamTimeout, got %v", err)
	}
	if len(f.cache.puts) != 0 {
		t.Error("timed-out request must not cache")
	}
}

func TestSearch_ClientCancelIsNotAnOutage(t *testing.T) {
	f := newFixture(t)
	// a disconnecting client fails both branches with Canceled
	f.lex.err = context.Canceled
	f.sem.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Search(ctx, mustQuery(t, "abandoned question"), mustPrincipal(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Error("client cancel reported as upstream outage")
	}
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Error("client cancel reported as upstream timeout")
	}
	if len(f.cache.puts) != 0 {
		t.Error("canceled request must not cache")
	}
}

func TestSearch_NoValidVersionDropsCandidate(t *testing.T) {
	f := newFixture(t)
	f.addItem("kept", 0)
	// "retired" has item metadata but no resolvable version
	f.items.items["retired"] = domain.ContentItem{ID: "retired", Hash: "h-r"}
	f.lex.result = []candidate.Candidate{
		{ItemID: "retired", Lexical: 1.0},
		{ItemID: "kept", Lexical: 0.5},
	}

	res, err := f.svc.Search(context.Background(), mustQuery(t, "retired content"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ItemID != "kept" {
		t.Errorf("retired candidate not dropped: %+v", res.Results)
	}
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture(t)
	ids := []string{"a", "b", "c", "d", "e"}
	var cands []candidate.Candidate
	for i, id := range ids {
		f.addItem(id, 0)
		cands = append(cands, candidate.Candidate{ItemID: id, Lexical: float64(len(ids) - i)})
	}
	f.lex.result = cands

	q, err := query.New("paged question", query.Filters{}, query.Page{Offset: 2, Size: 2}, 0, nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	res, err := f.svc.Search(context.Background(), &q, mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 || res.Results[0].ItemID != "c" || res.Results[1].ItemID != "d" {
		t.Errorf("unexpected page: %+v", res.Results)
	}
}

func TestSearch_OffsetPastEndReturnsEmptyPage(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.lex.result = []candidate.Candidate{{ItemID: "a", Lexical: 1.0}}

	q, err := query.New("short page", query.Filters{}, query.Page{Offset: 10, Size: 5}, 0, nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}

	res, err := f.svc.Search(context.Background(), &q, mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 0 {
		t.Errorf("expected empty page, got %+v", res.Results)
	}
}

func TestSearch_CachePutFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.addItem("a", 0)
	f.lex.result = []candidate.Candidate{{ItemID: "a", Lexical: 1.0}}
	f.cache.putErr = errors.New("write refused")

	res, err := f.svc.Search(context.Background(), mustQuery(t, "best effort"), mustPrincipal(t))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 1 {
		t.Errorf("result lost on cache put failure: %+v", res.Results)
	}
}
