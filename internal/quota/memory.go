package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. Used in tests and suitable for
// single-process deployments without PostgreSQL.
type MemoryStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[uuid.UUID]State)}
}

// Seed inserts or replaces a user's state.
func (m *MemoryStore) Seed(st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.UserID] = st
}

func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		return State{}, ErrUserNotFound
	}
	return st, nil
}

func (m *MemoryStore) ResetWindow(_ context.Context, userID uuid.UUID, asOf time.Time, remaining int, resetAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok || st.ResetAt.After(asOf) {
		return false, nil
	}
	st.Remaining = remaining
	st.ResetAt = resetAt
	m.states[userID] = st
	return true, nil
}

func (m *MemoryStore) ConsumeOne(_ context.Context, userID uuid.UUID) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok || st.Remaining <= 0 {
		return 0, false, nil
	}
	st.Remaining--
	m.states[userID] = st
	return st.Remaining, true, nil
}

func (m *MemoryStore) Reseed(_ context.Context, userID uuid.UUID, tier Tier, remaining int, resetAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		return ErrUserNotFound
	}
	st.Tier = tier
	st.Remaining = remaining
	st.ResetAt = resetAt
	m.states[userID] = st
	return nil
}
