package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumra/lumra-backend/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

// Service owns signup and the guardian/elderly link workflow. It also
// answers the identity and link lookups used by middleware, the geofence
// service and the notifier.
type Service struct {
	store Store
	log   *zap.Logger
	// cost is lowered in tests.
	cost int
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, log: logging.Component(logger, "profiles"), cost: bcrypt.DefaultCost}
}

func (s *Service) SignupElderly(ctx context.Context, in ElderlySignup) (Elderly, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Gender = strings.TrimSpace(in.Gender)
	in.Address = strings.TrimSpace(in.Address)
	switch {
	case in.Name == "":
		return Elderly{}, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	case in.Age <= 0 || in.Age >= 150:
		return Elderly{}, fmt.Errorf("%w: age must be between 1 and 149", ErrInvalidProfile)
	case in.Gender == "":
		return Elderly{}, fmt.Errorf("%w: gender is required", ErrInvalidProfile)
	case in.Address == "":
		return Elderly{}, fmt.Errorf("%w: address is required", ErrInvalidProfile)
	}
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return Elderly{}, err
	}
	hash, err := s.hashPassword(in.Password, in.Confirm)
	if err != nil {
		return Elderly{}, err
	}

	now := time.Now().UTC()
	e := Elderly{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Age:          in.Age,
		Gender:       in.Gender,
		Phone:        phone,
		Address:      in.Address,
		Medical:      strings.TrimSpace(in.Medical),
		PasswordHash: hash,
		GuardianIDs:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateElderly(ctx, e); err != nil {
		return Elderly{}, err
	}
	s.log.Info("elderly signed up", zap.String("elderly_id", e.ID))
	return e, nil
}

func (s *Service) SignupGuardian(ctx context.Context, in GuardianSignup) (Guardian, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Guardian{}, fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return Guardian{}, fmt.Errorf("%w: invalid email", ErrInvalidProfile)
	}
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return Guardian{}, err
	}
	hash, err := s.hashPassword(in.Password, in.Confirm)
	if err != nil {
		return Guardian{}, err
	}

	now := time.Now().UTC()
	g := Guardian{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        strings.ToLower(addr.Address),
		Phone:        phone,
		Address:      strings.TrimSpace(in.Address),
		Relation:     strings.TrimSpace(in.Relation),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateGuardian(ctx, g); err != nil {
		return Guardian{}, err
	}
	s.log.Info("guardian signed up", zap.String("guardian_id", g.ID))
	return g, nil
}

// SendRequest asks the elderly user registered under elderlyPhone to accept
// guardianID. A second request while one is pending returns the pending one.
func (s *Service) SendRequest(ctx context.Context, guardianID, elderlyPhone string) (LinkRequest, error) {
	if _, err := s.store.GetGuardian(ctx, guardianID); err != nil {
		return LinkRequest{}, err
	}
	phone, err := NormalizePhone(elderlyPhone)
	if err != nil {
		return LinkRequest{}, err
	}
	e, err := s.store.FindElderlyByPhone(ctx, phone)
	if err != nil {
		return LinkRequest{}, err
	}
	if e.HasGuardian(guardianID) {
		return LinkRequest{}, ErrAlreadyLinked
	}

	pending, err := s.store.ListRequests(ctx, e.ID, StatusPending)
	if err != nil {
		return LinkRequest{}, err
	}
	for _, req := range pending {
		if req.GuardianID == guardianID {
			return req, nil
		}
	}

	now := time.Now().UTC()
	req := LinkRequest{
		ID:         uuid.NewString(),
		GuardianID: guardianID,
		ElderlyID:  e.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return LinkRequest{}, err
	}
	s.log.Info("link request sent",
		zap.String("request_id", req.ID),
		zap.String("guardian_id", guardianID),
		zap.String("elderly_id", e.ID))
	return req, nil
}

func (s *Service) AcceptRequest(ctx context.Context, elderlyID, requestID string) (LinkRequest, error) {
	return s.answer(ctx, elderlyID, requestID, StatusAccepted)
}

func (s *Service) RejectRequest(ctx context.Context, elderlyID, requestID string) (LinkRequest, error) {
	return s.answer(ctx, elderlyID, requestID, StatusRejected)
}

func (s *Service) answer(ctx context.Context, elderlyID, requestID string, status RequestStatus) (LinkRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return LinkRequest{}, err
	}
	// Requests addressed to someone else look missing.
	if req.ElderlyID != elderlyID {
		return LinkRequest{}, ErrRequestNotFound
	}
	req, err = s.store.AnswerRequest(ctx, requestID, status)
	if err != nil {
		return LinkRequest{}, err
	}
	s.log.Info("link request answered",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)))
	return req, nil
}

func (s *Service) PendingRequests(ctx context.Context, elderlyID string) ([]LinkRequest, error) {
	return s.store.ListRequests(ctx, elderlyID, StatusPending)
}

// ListElderlies returns the dashboard rows of a guardian's accepted links.
func (s *Service) ListElderlies(ctx context.Context, guardianID string) ([]ElderlySummary, error) {
	elderlies, err := s.store.ListElderliesOf(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	out := make([]ElderlySummary, 0, len(elderlies))
	for _, e := range elderlies {
		out = append(out, ElderlySummary{ElderlyID: e.ID, ElderlyName: e.Name, Phone: e.Phone})
	}
	return out, nil
}

// GuardiansOf lists the guardian ids linked to an elderly user.
func (s *Service) GuardiansOf(ctx context.Context, elderlyID string) ([]string, error) {
	e, err := s.store.GetElderly(ctx, elderlyID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.GuardianIDs...), nil
}

// Guardians returns the full guardian profiles linked to an elderly user.
func (s *Service) Guardians(ctx context.Context, elderlyID string) ([]Guardian, error) {
	ids, err := s.GuardiansOf(ctx, elderlyID)
	if err != nil {
		return nil, err
	}
	out := make([]Guardian, 0, len(ids))
	for _, id := range ids {
		g, err := s.store.GetGuardian(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Service) GetElderly(ctx context.Context, id string) (Elderly, error) {
	return s.store.GetElderly(ctx, id)
}

func (s *Service) GetGuardian(ctx context.Context, id string) (Guardian, error) {
	return s.store.GetGuardian(ctx, id)
}

// IsLinked reports whether guardianID watches elderlyID.
func (s *Service) IsLinked(ctx context.Context, guardianID, elderlyID string) (bool, error) {
	e, err := s.store.GetElderly(ctx, elderlyID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.HasGuardian(guardianID), nil
}

func (s *Service) GuardianExists(id string) (bool, error) {
	return exists(s.store.GetGuardian(context.Background(), id))
}

func (s *Service) ElderlyExists(id string) (bool, error) {
	return exists(s.store.GetElderly(context.Background(), id))
}

func exists[T any](_ T, err error) (bool, error) {
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) hashPassword(password, confirm string) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidProfile, minPasswordLen)
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
