package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexProber checks that the content search index exists.
type IndexProber interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}
