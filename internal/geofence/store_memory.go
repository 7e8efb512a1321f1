package geofence

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	fences map[string]Geofence
}

func NewMemoryStore() Store {
	return &memoryStore{
		fences: make(map[string]Geofence),
	}
}

func (s *memoryStore) Create(_ context.Context, fence Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fences[fence.ID] = fence
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fence, ok := s.fences[id]
	if !ok {
		return Geofence{}, ErrNotFound
	}
	return fence, nil
}

func (s *memoryStore) Update(_ context.Context, fence Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.fences[fence.ID]
	if !ok || !current.Active {
		return ErrNotFound
	}
	current.Label = fence.Label
	current.Latitude = fence.Latitude
	current.Longitude = fence.Longitude
	current.RadiusMeters = fence.RadiusMeters
	current.UpdatedAt = time.Now().UTC()
	s.fences[fence.ID] = current
	return nil
}

func (s *memoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fence, ok := s.fences[id]
	if !ok {
		return ErrNotFound
	}
	fence.Active = false
	fence.UpdatedAt = time.Now().UTC()
	s.fences[id] = fence
	return nil
}

func (s *memoryStore) ListActive(_ context.Context, elderlyID string) ([]Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Geofence{}
	for _, fence := range s.fences {
		if fence.ElderlyID == elderlyID && fence.Active {
			out = append(out, fence)
		}
	}
	return out, nil
}
