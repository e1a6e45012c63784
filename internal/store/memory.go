package store

import (
	"context"
	"sort"
	"sync"

	"places-api/internal/logger"
	"places-api/internal/place"

	"github.com/google/uuid"
)

type memEntry struct {
	hash string
	id   string
}

// 文档注释：进程内存储
// 背景：按 (geohash, id) 维护有序索引，范围读取以二分定位起点后顺序扫描，语义与 SQL/Redis 后端一致。
// 约束：读写锁保护；返回值均为副本，调用方修改不影响存储。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]place.Place
	idx  []memEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]place.Place)}
}

func less(a, b memEntry) bool {
	if a.hash != b.hash {
		return a.hash < b.hash
	}
	return a.id < b.id
}

func (m *MemoryStore) Insert(ctx context.Context, p *place.Place) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc := clonePlace(*p)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.docs[doc.ID]; ok {
		m.removeIdx(memEntry{hash: old.Geohash, id: old.ID})
	}
	m.docs[doc.ID] = doc
	e := memEntry{hash: doc.Geohash, id: doc.ID}
	i := sort.Search(len(m.idx), func(i int) bool { return !less(m.idx[i], e) })
	m.idx = append(m.idx, memEntry{})
	copy(m.idx[i+1:], m.idx[i:])
	m.idx[i] = e
	logger.L().Debug("memstore_insert", "id", doc.ID, "geohash", doc.Geohash)
	return doc.ID, nil
}

func (m *MemoryStore) removeIdx(e memEntry) {
	i := sort.Search(len(m.idx), func(i int) bool { return !less(m.idx[i], e) })
	if i < len(m.idx) && m.idx[i] == e {
		m.idx = append(m.idx[:i], m.idx[i+1:]...)
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*place.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, place.ErrNotFound
	}
	out := clonePlace(doc)
	return &out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return place.ErrNotFound
	}
	delete(m.docs, id)
	m.removeIdx(memEntry{hash: doc.Geohash, id: id})
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, n int) ([]place.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	out := make([]place.Place, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, clonePlace(d))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) RangeByGeohash(ctx context.Context, start, end string) ([]place.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := sort.Search(len(m.idx), func(i int) bool { return m.idx[i].hash >= start })
	var out []place.Place
	for ; i < len(m.idx) && m.idx[i].hash <= end; i++ {
		out = append(out, clonePlace(m.docs[m.idx[i].id]))
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

// Len：当前文档数
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func clonePlace(p place.Place) place.Place {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	return p
}

var _ Store = (*MemoryStore)(nil)
