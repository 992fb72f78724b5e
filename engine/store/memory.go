// Package store provides UserStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/tourguide/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps users in a map keyed by name. The *User itself carries the
// visited locations and rewards, so the persistence hooks only validate.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*engine.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]*engine.User)}
}

func (m *Memory) AddUser(_ context.Context, u *engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Name]; ok {
		return engine.ErrDuplicateUser
	}
	m.users[u.Name] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, name string) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[name]
	if !ok {
		return nil, engine.ErrUserNotFound
	}
	return u, nil
}

// ListUsers returns users sorted by name.
func (m *Memory) ListUsers(_ context.Context) ([]*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*engine.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) AppendVisitedLocation(ctx context.Context, u *engine.User, _ engine.VisitedLocation) error {
	return m.known(u)
}

func (m *Memory) SaveRewards(ctx context.Context, u *engine.User) error {
	return m.known(u)
}

// Reset removes every user.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]*engine.User)
}

func (m *Memory) known(u *engine.User) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stored, ok := m.users[u.Name]; !ok || stored != u {
		return engine.ErrUserNotFound
	}
	return nil
}
