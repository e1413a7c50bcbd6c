package chi

import (
	"time"

	"github.com/lumen-kb/knolens/internal/domain"
)

// errorCode is the machine-readable error discriminator in responses.
type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeInvalidQuery        errorCode = "invalid_query"
	codeUnauthorized        errorCode = "unauthorized"
	codeItemNotFound        errorCode = "item_not_found"
	codeUpstreamUnavailable errorCode = "upstream_unavailable"
	codeUpstreamTimeout     errorCode = "upstream_timeout"
	codeEmbeddingProvider   errorCode = "embedding_provider_error"
	codeInternalError       errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type searchFilters struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type searchPage struct {
	Offset int `json:"offset,omitempty"`
	Size   int `json:"size,omitempty"`
}

type searchRequest struct {
	Query   string        `json:"query"`
	Filters searchFilters `json:"filters"`
	Page    searchPage    `json:"page"`
	TopK    int           `json:"top_k,omitempty"`
	AsOf    *time.Time    `json:"as_of,omitempty"`
}

type scopeBody struct {
	Tenant string   `json:"tenant,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

type contentChangeRequest struct {
	Text       string     `json:"text"`
	Summary    string     `json:"summary,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	CategoryID string     `json:"category_id,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Scope      scopeBody  `json:"scope"`
	At         *time.Time `json:"at,omitempty"`
}

type invalidateResponse struct {
	ItemID  string `json:"item_id"`
	Evicted int    `json:"evicted"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s scopeBody) toDomain() domain.Scope {
	return domain.Scope{Tenant: s.Tenant, Roles: s.Roles}
}
