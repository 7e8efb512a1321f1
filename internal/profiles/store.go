package profiles

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists elderly users, guardians and link requests.
type Store interface {
	CreateElderly(ctx context.Context, e Elderly) error
	GetElderly(ctx context.Context, id string) (Elderly, error)
	FindElderlyByPhone(ctx context.Context, phone string) (Elderly, error)
	// ListElderliesOf returns the elderly users guardianID is linked to.
	ListElderliesOf(ctx context.Context, guardianID string) ([]Elderly, error)

	CreateGuardian(ctx context.Context, g Guardian) error
	GetGuardian(ctx context.Context, id string) (Guardian, error)

	CreateRequest(ctx context.Context, req LinkRequest) error
	GetRequest(ctx context.Context, id string) (LinkRequest, error)
	ListRequests(ctx context.Context, elderlyID string, status RequestStatus) ([]LinkRequest, error)
	// AnswerRequest moves a pending request to status. Accepting also links
	// the guardian to the elderly user in the same step.
	AnswerRequest(ctx context.Context, id string, status RequestStatus) (LinkRequest, error)
}

type memoryStore struct {
	mu        sync.RWMutex
	elderlies map[string]Elderly
	guardians map[string]Guardian
	requests  map[string]LinkRequest
}

func NewMemoryStore() Store {
	return &memoryStore{
		elderlies: make(map[string]Elderly),
		guardians: make(map[string]Guardian),
		requests:  make(map[string]LinkRequest),
	}
}

func (s *memoryStore) CreateElderly(_ context.Context, e Elderly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.elderlies {
		if other.Phone == e.Phone {
			return ErrPhoneTaken
		}
	}
	s.elderlies[e.ID] = e
	return nil
}

func (s *memoryStore) GetElderly(_ context.Context, id string) (Elderly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elderlies[id]
	if !ok {
		return Elderly{}, ErrNotFound
	}
	return e, nil
}

func (s *memoryStore) FindElderlyByPhone(_ context.Context, phone string) (Elderly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.elderlies {
		if e.Phone == phone {
			return e, nil
		}
	}
	return Elderly{}, ErrNotFound
}

func (s *memoryStore) ListElderliesOf(_ context.Context, guardianID string) ([]Elderly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Elderly{}
	for _, e := range s.elderlies {
		if e.HasGuardian(guardianID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) CreateGuardian(_ context.Context, g Guardian) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.guardians {
		if strings.EqualFold(other.Email, g.Email) {
			return ErrEmailTaken
		}
		if other.Phone == g.Phone {
			return ErrPhoneTaken
		}
	}
	s.guardians[g.ID] = g
	return nil
}

func (s *memoryStore) GetGuardian(_ context.Context, id string) (Guardian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guardians[id]
	if !ok {
		return Guardian{}, ErrNotFound
	}
	return g, nil
}

func (s *memoryStore) CreateRequest(_ context.Context, req LinkRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *memoryStore) GetRequest(_ context.Context, id string) (LinkRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return LinkRequest{}, ErrRequestNotFound
	}
	return req, nil
}

func (s *memoryStore) ListRequests(_ context.Context, elderlyID string, status RequestStatus) ([]LinkRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []LinkRequest{}
	for _, req := range s.requests {
		if req.ElderlyID == elderlyID && (status == "" || req.Status == status) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) AnswerRequest(_ context.Context, id string, status RequestStatus) (LinkRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return LinkRequest{}, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return LinkRequest{}, ErrRequestClosed
	}

	now := time.Now().UTC()
	if status == StatusAccepted {
		e, ok := s.elderlies[req.ElderlyID]
		if !ok {
			return LinkRequest{}, ErrNotFound
		}
		if !e.HasGuardian(req.GuardianID) {
			e.GuardianIDs = append(e.GuardianIDs, req.GuardianID)
			e.UpdatedAt = now
			s.elderlies[e.ID] = e
		}
	}
	req.Status = status
	req.UpdatedAt = now
	s.requests[id] = req
	return req, nil
}
