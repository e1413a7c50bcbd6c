package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
	healthuc "github.com/lumen-kb/knolens/internal/usecase/health"
	invalidateuc "github.com/lumen-kb/knolens/internal/usecase/invalidate"
)

type stubSearcher struct {
	res  candidate.RankedResults
	err  error
	gotQ *query.Query
	gotP principal.Principal
}

func (s *stubSearcher) Search(_ context.Context, q *query.Query, p principal.Principal) (candidate.RankedResults, error) {
	s.gotQ = q
	s.gotP = p
	return s.res, s.err
}

type stubContentStore struct {
	deleted []string
}

func (s *stubContentStore) GetItem(context.Context, string) (domain.ContentItem, error) {
	return domain.ContentItem{}, fmt.Errorf("%w", domain.ErrItemNotFound)
}
func (s *stubContentStore) PutItem(context.Context, domain.ContentItem) error       { return nil }
func (s *stubContentStore) PutVersion(context.Context, domain.ContentVersion) error { return nil }
func (s *stubContentStore) CloseOpenVersion(_ context.Context, itemID string, _ time.Time) (domain.ContentVersion, error) {
	return domain.ContentVersion{ItemID: itemID}, nil
}
func (s *stubContentStore) PutDoc(context.Context, domain.ContentItem, domain.ContentVersion) error {
	return nil
}
func (s *stubContentStore) DeleteDoc(_ context.Context, itemID string) error {
	s.deleted = append(s.deleted, itemID)
	return nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type stubResultCache struct {
	evicted int
	err     error
}

func (s *stubResultCache) Invalidate(context.Context, string) (int, error) {
	return s.evicted, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(t *testing.T, search Searcher, cache *stubResultCache, pinger stubPinger) (http.Handler, *stubContentStore) {
	t.Helper()
	if cache == nil {
		cache = &stubResultCache{}
	}
	content := &stubContentStore{}
	inval := invalidateuc.New(content, stubEmbedder{}, cache, zap.NewNop())
	health := healthuc.New(pinger, nil, nil, "")

	srv := NewServer(search, inval, health, zap.NewNop())
	r := chi.NewRouter()
	srv.Routes(r)
	return r, content
}

func searchBody(t *testing.T, q string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(searchRequest{Query: q})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewBuffer(body)
}

func withClaims(req *http.Request) *http.Request {
	req.Header.Set(headerTenant, "acme")
	req.Header.Set(headerRoles, "engineer, oncall")
	return req
}

func TestHandleSearch_OK(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	search := &stubSearcher{res: candidate.RankedResults{
		Results: []candidate.Resolved{{ItemID: "item-1", VersionID: "v1", Score: 0.69, ValidFrom: asOf}},
		AsOf:    asOf,
	}}
	handler, _ := newTestServer(t, search, nil, stubPinger{})

	req := withClaims(httptest.NewRequest("POST", "/v1/search", searchBody(t, "redis ttl semantics")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var res candidate.RankedResults
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].ItemID != "item-1" {
		t.Errorf("unexpected results: %+v", res.Results)
	}
	if search.gotQ == nil || search.gotQ.Normalized() != "redis ttl semantics" {
		t.Errorf("query not forwarded: %+v", search.gotQ)
	}
	if search.gotP.Tenant() != "acme" {
		t.Errorf("principal tenant: got %s, want acme", search.gotP.Tenant())
	}
}

func TestHandleSearch_ConfiguredLimitsApplied(t *testing.T) {
	search := &stubSearcher{}
	cache := &stubResultCache{}
	content := &stubContentStore{}
	inval := invalidateuc.New(content, stubEmbedder{}, cache, zap.NewNop())
	health := healthuc.New(stubPinger{}, nil, nil, "")

	srv := NewServer(search, inval, health, zap.NewNop()).
		WithLimits(query.Limits{TopK: 25, PageSize: 5, MaxPageSize: 40})
	r := chi.NewRouter()
	srv.Routes(r)

	req := withClaims(httptest.NewRequest("POST", "/v1/search", searchBody(t, "redis ttl")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if search.gotQ == nil {
		t.Fatal("searcher not called")
	}
	if search.gotQ.TopK() != 25 {
		t.Errorf("topK = %d, want configured 25", search.gotQ.TopK())
	}
	if search.gotQ.Page().Size != 5 {
		t.Errorf("page size = %d, want configured 5", search.gotQ.Page().Size)
	}
}

func TestHandleSearch_NoClaims_401(t *testing.T) {
	handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	req := httptest.NewRequest("POST", "/v1/search", searchBody(t, "redis"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeUnauthorized {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeUnauthorized)
	}
}

func TestHandleSearch_BadBody_400(t *testing.T) {
	handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	req := withClaims(httptest.NewRequest("POST", "/v1/search", bytes.NewBufferString("{not json")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeBadRequest {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestHandleSearch_EmptyQuery_400(t *testing.T) {
	handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	req := withClaims(httptest.NewRequest("POST", "/v1/search", searchBody(t, "   ")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeInvalidQuery {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeInvalidQuery)
	}
}

func TestHandleSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody errorCode
	}{
		{"invalid query", domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized},
		{"item not found", domain.ErrItemNotFound, http.StatusNotFound, codeItemNotFound},
		{"embedding provider", domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider},
		{"upstream unavailable", domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, codeUpstreamUnavailable},
		{"upstream timeout", domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			search := &stubSearcher{err: fmt.Errorf("search: %w", tc.err)}
			handler, _ := newTestServer(t, search, nil, stubPinger{})

			req := withClaims(httptest.NewRequest("POST", "/v1/search", searchBody(t, "redis")))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.wantCode)
			}
			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != tc.wantBody {
				t.Errorf("error code: got %s, want %s", errResp.Code, tc.wantBody)
			}
		})
	}
}

func TestHandleSearch_InternalErrorNotLeaked(t *testing.T) {
	search := &stubSearcher{err: errors.New("redis cluster topology refresh failed at 10.0.0.3")}
	handler, _ := newTestServer(t, search, nil, stubPinger{})

	req := withClaims(httptest.NewRequest("POST", "/v1/search", searchBody(t, "redis")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Message != "internal error" {
		t.Errorf("internal detail leaked to client: %q", errResp.Message)
	}
}

func TestHandleInvalidate_OK(t *testing.T) {
	cache := &stubResultCache{evicted: 3}
	handler, _ := newTestServer(t, &stubSearcher{}, cache, stubPinger{})

	req := httptest.NewRequest("POST", "/v1/invalidate/item-7", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var res invalidateResponse
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.ItemID != "item-7" || res.Evicted != 3 {
		t.Errorf("unexpected response: %+v", res)
	}
}

func TestHandleContentChanged_204(t *testing.T) {
	handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	body, err := json.Marshal(contentChangeRequest{
		Text:       "how to tune redis ttl",
		CategoryID: "runbooks",
		Scope:      scopeBody{Tenant: "acme", Roles: []string{"engineer"}},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest("PUT", "/v1/content/item-9", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d, body %s", rr.Code, http.StatusNoContent, rr.Body.String())
	}
}

func TestHandleContentChanged_MissingText_400(t *testing.T) {
	handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	req := httptest.NewRequest("PUT", "/v1/content/item-9", bytes.NewBufferString(`{"summary":"no text"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleRetire_204(t *testing.T) {
	handler, content := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

	req := httptest.NewRequest("DELETE", "/v1/content/item-4", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(content.deleted) != 1 || content.deleted[0] != "item-4" {
		t.Errorf("deindexed items: %v", content.deleted)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("db up", func(t *testing.T) {
		handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{})

		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
		}
		var res healthResponse
		if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if res.Checks["database"] != string(healthuc.CheckOK) {
			t.Errorf("database check: got %s, want %s", res.Checks["database"], healthuc.CheckOK)
		}
	})

	t.Run("db down", func(t *testing.T) {
		handler, _ := newTestServer(t, &stubSearcher{}, nil, stubPinger{errors.New("connection refused")})

		req := httptest.NewRequest("GET", "/health", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
		}
	})
}
