package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sweetshop/apiserver/internal/storage"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
)

type mockUserRepo struct {
	mu         sync.Mutex
	byName     map[string]types.User
	lastID     int
	createErr  error
	lookupErr  error
	createCall int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byName: make(map[string]types.User)}
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return types.User{}, m.lookupErr
	}
	if u, ok := m.byName[username]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *mockUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCall++
	if m.createErr != nil {
		return types.User{}, m.createErr
	}
	if _, ok := m.byName[user.Username]; ok {
		return types.User{}, store.ErrConflict
	}
	m.lastID++
	user.ID = m.lastID
	user.CreatedAt = time.Now()
	m.byName[user.Username] = user
	return user, nil
}

func (m *mockUserRepo) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[username]
	if !ok {
		return store.ErrNotFound
	}
	u.IsAdmin = isAdmin
	m.byName[username] = u
	return nil
}

// mockSweetRepo serializes purchases with a mutex, standing in for the row
// lock the SQL store takes.
type mockSweetRepo struct {
	mu        sync.Mutex
	sweets    map[int]types.Sweet
	purchases []types.Purchase
	lastID    int
	listCalls int
}

func newMockSweetRepo(sweets ...types.Sweet) *mockSweetRepo {
	m := &mockSweetRepo{sweets: make(map[int]types.Sweet)}
	for _, s := range sweets {
		m.lastID++
		if s.ID == 0 {
			s.ID = m.lastID
		}
		m.sweets[s.ID] = s
	}
	return m
}

func (m *mockSweetRepo) List(ctx context.Context) ([]types.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]types.Sweet, 0, len(m.sweets))
	for _, s := range m.sweets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockSweetRepo) Search(ctx context.Context, filter types.SweetFilter) ([]types.Sweet, error) {
	return m.List(ctx)
}

func (m *mockSweetRepo) Get(ctx context.Context, id int) (types.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sweets[id]
	if !ok {
		return types.Sweet{}, store.ErrNotFound
	}
	return s, nil
}

func (m *mockSweetRepo) Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	sweet.ID = m.lastID
	m.sweets[sweet.ID] = sweet
	return sweet, nil
}

func (m *mockSweetRepo) Update(ctx context.Context, sweet types.Sweet) (types.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sweets[sweet.ID]
	if !ok {
		return types.Sweet{}, store.ErrNotFound
	}
	sweet.ImageKey = current.ImageKey
	m.sweets[sweet.ID] = sweet
	return sweet, nil
}

func (m *mockSweetRepo) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sweets[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sweets, id)
	return nil
}

func (m *mockSweetRepo) SetImage(ctx context.Context, id int, imageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sweets[id]
	if !ok {
		return store.ErrNotFound
	}
	s.ImageKey = imageKey
	m.sweets[id] = s
	return nil
}

func (m *mockSweetRepo) Purchase(ctx context.Context, userID, sweetID, quantity int) (types.Purchase, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sweets[sweetID]
	if !ok || s.Quantity < quantity {
		return types.Purchase{}, 0, store.ErrInsufficientStock
	}
	// Widen the race window; without the lock both buyers would pass the check.
	time.Sleep(time.Millisecond)
	s.Quantity -= quantity
	m.sweets[sweetID] = s

	p := types.Purchase{
		ID:         int64(len(m.purchases) + 1),
		UserID:     userID,
		SweetID:    sweetID,
		Quantity:   quantity,
		TotalPrice: store.LineTotal(s.Price, quantity),
		CreatedAt:  time.Now(),
	}
	m.purchases = append(m.purchases, p)
	return p, s.Quantity, nil
}

func (m *mockSweetRepo) Restock(ctx context.Context, sweetID, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sweets[sweetID]
	if !ok {
		return 0, store.ErrNotFound
	}
	s.Quantity += quantity
	m.sweets[sweetID] = s
	return s.Quantity, nil
}

type mockCatalogue struct {
	mu          sync.Mutex
	sweets      []types.Sweet
	hit         bool
	invalidated int
}

func (c *mockCatalogue) Get(ctx context.Context) ([]types.Sweet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweets, c.hit, nil
}

func (c *mockCatalogue) Set(ctx context.Context, sweets []types.Sweet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweets = sweets
	c.hit = true
	return nil
}

func (c *mockCatalogue) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweets = nil
	c.hit = false
	c.invalidated++
	return nil
}

type publishedEvent struct {
	channel   string
	eventType string
	event     any
}

type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *mockPublisher) PublishJSON(ctx context.Context, channel, eventType string, event any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, publishedEvent{channel: channel, eventType: eventType, event: event})
	return "msg-1", nil
}

type mockImages struct {
	objects map[string][]byte
	types   map[string]string
	deleted []string
}

func newMockImages() *mockImages {
	return &mockImages{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockImages) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *mockImages) Get(ctx context.Context, key string) (storage.Object, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrNotFound
	}
	return storage.Object{Body: io.NopCloser(bytes.NewReader(data)), ContentType: m.types[key], Size: int64(len(data))}, nil
}

func (m *mockImages) Delete(ctx context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return errors.New("missing")
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type mockPurchaseRepo struct {
	purchases map[int64]types.Purchase
	from, to  time.Time
}

func (m *mockPurchaseRepo) ListByUser(ctx context.Context, userID int) ([]types.Purchase, error) {
	var out []types.Purchase
	for _, p := range m.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPurchaseRepo) Get(ctx context.Context, id int64) (types.Purchase, error) {
	p, ok := m.purchases[id]
	if !ok {
		return types.Purchase{}, store.ErrNotFound
	}
	return p, nil
}

func (m *mockPurchaseRepo) Stats(ctx context.Context) (types.Stats, error) {
	return types.Stats{TotalPurchases: len(m.purchases)}, nil
}

func (m *mockPurchaseRepo) SalesReport(ctx context.Context, from, to time.Time) (types.SalesReport, error) {
	m.from, m.to = from, to
	return types.SalesReport{From: from, To: to}, nil
}
