package adapter

import (
	"context"
	"sort"
	"sync"

	"wnpbridge/internal/models"
	"wnpbridge/internal/version"
)

// Manager owns one Socket per configured adapter.
type Manager struct {
	exec    Executor
	checker *version.Checker
	opts    []SocketOption

	mu      sync.RWMutex
	ctx     context.Context
	sockets map[int64]*Socket
}

type ManagerOption func(*Manager)

func WithVersionChecker(c *version.Checker) ManagerOption {
	return func(m *Manager) { m.checker = c }
}

// WithSocketOptions applies opts to every socket the manager creates.
func WithSocketOptions(opts ...SocketOption) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

func NewManager(exec Executor, opts ...ManagerOption) *Manager {
	m := &Manager{
		exec:    exec,
		ctx:     context.Background(),
		sockets: make(map[int64]*Socket),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates sockets for adapters, connecting the enabled ones.
func (m *Manager) Start(ctx context.Context, adapters []models.Adapter) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	for _, a := range adapters {
		m.Sync(a)
	}
}

// Sync replaces the socket for a with one built from its current settings.
func (m *Manager) Sync(a models.Adapter) {
	m.mu.Lock()
	old := m.sockets[a.ID]
	opts := append([]SocketOption{
		WithContext(m.ctx),
		WithChecker(m.checker),
		WithResultRouter(m.DeliverResult),
	}, m.opts...)
	s := NewSocket(a, m.exec, opts...)
	m.sockets[a.ID] = s
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if a.Enabled {
		s.Connect()
	}
}

// Remove closes and forgets the socket for id.
func (m *Manager) Remove(id int64) {
	m.mu.Lock()
	s, ok := m.sockets[id]
	delete(m.sockets, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (m *Manager) Connect(id int64) error {
	s, ok := m.socket(id)
	if !ok {
		return models.ErrNotFound
	}
	s.Connect()
	return nil
}

func (m *Manager) Disconnect(id int64) error {
	s, ok := m.socket(id)
	if !ok {
		return models.ErrNotFound
	}
	s.Close()
	return nil
}

func (m *Manager) socket(id int64) (*Socket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sockets[id]
	return s, ok
}

func (m *Manager) Status(id int64) (models.AdapterStatus, bool) {
	s, ok := m.socket(id)
	if !ok {
		return models.AdapterStatus{}, false
	}
	return s.Status(), true
}

// Statuses lists every socket's status ordered by adapter id.
func (m *Manager) Statuses() []models.AdapterStatus {
	m.mu.RLock()
	out := make([]models.AdapterStatus, 0, len(m.sockets))
	for _, s := range m.sockets {
		out = append(out, s.Status())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Adapter.ID < out[j].Adapter.ID })
	return out
}

// SendUpdate fans the authoritative snapshot out to every socket.
func (m *Manager) SendUpdate(info *models.MediaInfo) {
	m.mu.RLock()
	sockets := make([]*Socket, 0, len(m.sockets))
	for _, s := range m.sockets {
		sockets = append(sockets, s)
	}
	m.mu.RUnlock()
	for _, s := range sockets {
		s.SendUpdate(info)
	}
}

// DeliverResult routes a revision 3 command result to the socket bound to
// its event port.
func (m *Manager) DeliverResult(r models.EventResult) {
	m.mu.RLock()
	var target *Socket
	for _, s := range m.sockets {
		if s.adapter.Port == r.EventSocketPort {
			target = s
			break
		}
	}
	m.mu.RUnlock()
	if target != nil {
		target.SendResult(r)
	}
}

// Stop closes every socket.
func (m *Manager) Stop() {
	m.mu.Lock()
	sockets := make([]*Socket, 0, len(m.sockets))
	for _, s := range m.sockets {
		sockets = append(sockets, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sockets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
