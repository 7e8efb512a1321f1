package tracker

import (
	"context"
	"sync"
)

// StateStore persists membership states. The tracker is the only writer and
// serializes Put per pair, so implementations need no read-modify-write
// protection of their own.
type StateStore interface {
	Get(ctx context.Context, key PairKey) (State, bool, error)
	Put(ctx context.Context, state State) error
	// List returns every state of an elderly user.
	List(ctx context.Context, elderlyID string) ([]State, error)
	// DeleteGeofence drops all states of a deactivated fence.
	DeleteGeofence(ctx context.Context, geofenceID string) error
}

type memoryStore struct {
	mu     sync.RWMutex
	states map[PairKey]State
}

func NewMemoryStore() StateStore {
	return &memoryStore{states: make(map[PairKey]State)}
}

func (s *memoryStore) Get(_ context.Context, key PairKey) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok, nil
}

func (s *memoryStore) Put(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Key()] = state
	return nil
}

func (s *memoryStore) List(_ context.Context, elderlyID string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []State{}
	for k, st := range s.states {
		if k.ElderlyID == elderlyID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteGeofence(_ context.Context, geofenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.states {
		if k.GeofenceID == geofenceID {
			delete(s.states, k)
		}
	}
	return nil
}
