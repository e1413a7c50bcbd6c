package domain

import "errors"

var (
	// ErrInvalidQuery signals an empty or oversized search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnauthorized signals a principal with no usable access scope.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstreamUnavailable signals that both retrieval upstreams are unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamTimeout signals that the query deadline elapsed before fusion completed.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrNoValidVersion signals that no content version covers the requested as-of time.
	ErrNoValidVersion = errors.New("no valid version")

	// ErrItemNotFound signals a missing content item.
	ErrItemNotFound = errors.New("content item not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
