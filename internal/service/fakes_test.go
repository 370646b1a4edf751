package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ArticlesCatalog/internal/model"
	"ArticlesCatalog/internal/repository"
	cachepkg "ArticlesCatalog/pkg/cache"
)

// memStore: хранилище статей в памяти. WithinImport откатывает изменения при ошибке,
// поля-функции позволяют подставить ошибки базы
type memStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]model.Article

	upsertErr func(code string) error
	commitErr error
	getCalls  int
}

func newMemStore(articles ...model.Article) *memStore {
	m := &memStore{byID: make(map[int64]model.Article)}
	for _, a := range articles {
		m.nextID++
		a.ID = m.nextID
		m.byID[a.ID] = a
	}
	return m
}

func (m *memStore) findByCode(code string) (model.Article, bool) {
	for _, a := range m.byID {
		if a.Code == code {
			return a, true
		}
	}
	return model.Article{}, false
}

func (m *memStore) CreateArticle(ctx context.Context, code, description string, price decimal.Decimal) (*model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.findByCode(code); ok {
		return nil, repository.ErrDuplicateCode
	}
	m.nextID++
	a := model.Article{ID: m.nextID, Code: code, Description: description, Price: price}
	m.byID[a.ID] = a
	return &a, nil
}

func (m *memStore) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	a, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) UpdateArticle(ctx context.Context, in *model.Article) (*model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[in.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	if other, ok := m.findByCode(in.Code); ok && other.ID != in.ID {
		return nil, repository.ErrDuplicateCode
	}
	m.byID[in.ID] = *in
	out := *in
	return &out, nil
}

func (m *memStore) DeleteArticle(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memStore) sorted() []model.Article {
	out := make([]model.Article, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListArticles(ctx context.Context, limit, offset int) ([]model.Article, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if offset >= len(all) {
		return []model.Article{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memStore) AllArticles(ctx context.Context) ([]model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *memStore) WithinImport(ctx context.Context, fn func(tx repository.ImportTx) error) error {
	m.mu.Lock()
	snapshot := make(map[int64]model.Article, len(m.byID))
	for k, v := range m.byID {
		snapshot[k] = v
	}
	next := m.nextID
	m.mu.Unlock()

	rollback := func() {
		m.mu.Lock()
		m.byID, m.nextID = snapshot, next
		m.mu.Unlock()
	}
	if err := fn(&memTx{store: m}); err != nil {
		rollback()
		return err
	}
	if m.commitErr != nil {
		rollback()
		return m.commitErr
	}
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memStore) byCode(code string) (model.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByCode(code)
}

type memTx struct {
	store *memStore
}

func (t *memTx) UpsertArticle(ctx context.Context, code, description string, price decimal.Decimal) (int64, bool, error) {
	m := t.store
	if m.upsertErr != nil {
		if err := m.upsertErr(code); err != nil {
			return 0, false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.findByCode(code); ok {
		a.Description, a.Price = description, price
		m.byID[a.ID] = a
		return a.ID, false, nil
	}
	m.nextID++
	m.byID[m.nextID] = model.Article{ID: m.nextID, Code: code, Description: description, Price: price}
	return m.nextID, true, nil
}

// memCache: кэш в памяти, запоминающий удалённые ключи
type memCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, cachepkg.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.invalidated = append(c.invalidated, keys...)
	return nil
}

// mockPublisher собирает опубликованные события
type mockPublisher struct {
	events []model.ArticleEvent
	err    error
}

func (p *mockPublisher) PublishEvent(event any) error {
	if e, ok := event.(model.ArticleEvent); ok {
		p.events = append(p.events, e)
	}
	return p.err
}

func ptr(s string) *string {
	return &s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
