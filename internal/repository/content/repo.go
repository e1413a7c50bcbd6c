// Package content is the versioned content read model. Items and their
// version history live in plain hashes; the current version of every
// item is additionally mirrored into an FT-indexed document hash that
// the lexical and semantic adapters search over.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lumen-kb/knolens/internal/db"
	"github.com/lumen-kb/knolens/internal/domain"
)

// Key layout under domain.KeyPrefix:
//
//	item:<id>            hash: item metadata + scope
//	ver:<itemID>:<verID> hash: one version snapshot
//	vers:<itemID>        set:  version ids of the item
//	doc:<itemID>         hash: FT-indexed current version
const (
	itemKeyPrefix = domain.KeyPrefix + "item:"
	verKeyPrefix  = domain.KeyPrefix + "ver:"
	versKeyPrefix = domain.KeyPrefix + "vers:"
	docKeyPrefix  = domain.KeyPrefix + "doc:"

	// IndexName is the FT index over current-version documents.
	IndexName = domain.KeyPrefix + "content:idx"
)

// store is the consumer interface for the content read model (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// HNSWConfig tunes the vector index build.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo reads and maintains versioned content.
type Repo struct {
	store     store
	vectorDim int
	hnsw      HNSWConfig
}

// New creates a content repository.
func New(s store, vectorDim int) *Repo {
	if vectorDim <= 0 {
		vectorDim = domain.DefaultVectorDim
	}
	return &Repo{store: s, vectorDim: vectorDim}
}

// WithHNSW overrides HNSW build parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the content FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     IndexName,
		Prefixes: []string{docKeyPrefix},
		Fields: []db.IndexField{
			{Name: fieldContent, Type: db.IndexFieldText},
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldTags, Type: db.IndexFieldTag},
			{Name: fieldValidFrom, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.vectorDim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// GetItem loads item metadata and scope.
func (r *Repo) GetItem(ctx context.Context, itemID string) (domain.ContentItem, error) {
	m, err := r.store.HGetAll(ctx, itemKeyPrefix+itemID)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("get item %s: %w", itemID, err)
	}
	if len(m) == 0 {
		return domain.ContentItem{}, domain.ErrItemNotFound
	}
	return parseItemFields(m), nil
}

// Items loads metadata for a batch of items in one round trip. Missing
// items are absent from the returned map, not an error.
func (r *Repo) Items(ctx context.Context, itemIDs []string) (map[string]domain.ContentItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keys[i] = itemKeyPrefix + id
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	out := make(map[string]domain.ContentItem, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		item := parseItemFields(m)
		out[item.ID] = item
	}
	return out, nil
}

// PutItem stores item metadata and scope.
func (r *Repo) PutItem(ctx context.Context, item domain.ContentItem) error {
	if err := r.store.HSet(ctx, itemKeyPrefix+item.ID, buildItemFields(item)); err != nil {
		return fmt.Errorf("put item %s: %w", item.ID, err)
	}
	return nil
}

// Versions loads the full version history of an item, ordered by ValidFrom.
func (r *Repo) Versions(ctx context.Context, itemID string) ([]domain.ContentVersion, error) {
	ids, err := r.store.SMembers(ctx, versKeyPrefix+itemID)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", itemID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = verKeyPrefix + itemID + ":" + id
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load versions %s: %w", itemID, err)
	}

	versions := make([]domain.ContentVersion, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		versions = append(versions, parseVersionFields(m))
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].ValidFrom.Before(versions[j].ValidFrom)
	})
	return versions, nil
}

// PutVersion stores a version snapshot and registers it in the item's history.
func (r *Repo) PutVersion(ctx context.Context, v domain.ContentVersion) error {
	key := verKeyPrefix + v.ItemID + ":" + v.VersionID
	if err := r.store.HSet(ctx, key, buildVersionFields(v)); err != nil {
		return fmt.Errorf("put version %s: %w", v.VersionID, err)
	}
	if err := r.store.SAdd(ctx, versKeyPrefix+v.ItemID, v.VersionID); err != nil {
		return fmt.Errorf("register version %s: %w", v.VersionID, err)
	}
	return nil
}

// CloseOpenVersion sets ValidTo=at on the item's open version, if any.
// Returns the closed version, or ErrNoValidVersion when the item has no
// open version (already retired).
func (r *Repo) CloseOpenVersion(ctx context.Context, itemID string, at time.Time) (domain.ContentVersion, error) {
	versions, err := r.Versions(ctx, itemID)
	if err != nil {
		return domain.ContentVersion{}, err
	}

	for _, v := range versions {
		if !v.Current() {
			continue
		}
		closed := v
		to := at
		closed.ValidTo = &to
		key := verKeyPrefix + itemID + ":" + v.VersionID
		if err := r.store.HSet(ctx, key, buildVersionFields(closed)); err != nil {
			return domain.ContentVersion{}, fmt.Errorf("close version %s: %w", v.VersionID, err)
		}
		return closed, nil
	}

	return domain.ContentVersion{}, domain.ErrNoValidVersion
}

// PutDoc mirrors the current version of an item into the FT-indexed
// document hash searched by the retrieval upstreams.
func (r *Repo) PutDoc(ctx context.Context, item domain.ContentItem, v domain.ContentVersion) error {
	fields := buildVersionFields(v)
	fields[fieldCategory] = item.CategoryID
	fields[fieldTags] = joinForIndex(item.Tags)

	if err := r.store.HSet(ctx, docKeyPrefix+item.ID, fields); err != nil {
		return fmt.Errorf("put doc %s: %w", item.ID, err)
	}
	return nil
}

// DeleteDoc removes a retired item's document from the FT index.
func (r *Repo) DeleteDoc(ctx context.Context, itemID string) error {
	if err := r.store.Del(ctx, docKeyPrefix+itemID); err != nil {
		return fmt.Errorf("delete doc %s: %w", itemID, err)
	}
	return nil
}

// joinForIndex renders tags for the TAG field (default separator is ",").
func joinForIndex(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += tagSeparator
		}
		out += t
	}
	return out
}
