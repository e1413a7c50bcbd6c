package content

import (
	"context"
	"testing"

	"github.com/lumen-kb/knolens/internal/db"
)

// memStore is an in-memory stand-in for the Redis store.
type memStore struct {
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	indexes map[string]*db.IndexDefinition
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		indexes: make(map[string]*db.IndexDefinition),
	}
}

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		h, _ := m.HGetAll(ctx, key)
		out[i] = h
	}
	return out, nil
}

func (m *memStore) SAdd(_ context.Context, key string, members ...string) error {
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.hashes, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *memStore) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := m.indexes[name]
	return ok, nil
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(ms, 4), ms
}
