// Package testutil holds in-memory repositories and a Redis fixture used by
// the service, usecase and handler tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"
)

// TokenStore is an in-memory TokenRepository. Reads return copies, so a
// caller's changes are only visible after Save.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]entity.Token

	// Err, when set, is returned by every method.
	Err error
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]entity.Token)}
}

// Create enforces one active token per patient and visit date, like the
// partial unique index on the tokens table.
func (s *TokenStore) Create(ctx context.Context, token *entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if token.IsActive() {
		day := entity.NormalizeDate(token.VisitDate)
		for _, t := range s.tokens {
			if t.ID != token.ID && t.PatientID == token.PatientID && entity.NormalizeDate(t.VisitDate).Equal(day) && t.IsActive() {
				return repository.ErrDuplicateActiveToken
			}
		}
	}
	s.tokens[token.ID] = clone(*token)
	return nil
}

func (s *TokenStore) Save(ctx context.Context, token *entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.tokens[token.ID] = clone(*token)
	return nil
}

func (s *TokenStore) FindByID(ctx context.Context, id string) (*entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	t, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	c := clone(t)
	return &c, nil
}

func (s *TokenStore) FindBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) ([]entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []entity.Token
	for _, t := range s.tokens {
		if t.SlotKey().String() == key.String() && hasStatus(statuses, t.Status) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].TokenNumber, out[j].TokenNumber
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TokenStore) CountBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	var n int64
	for _, t := range s.tokens {
		if t.SlotKey().String() == key.String() && hasStatus(statuses, t.Status) {
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) MaxTokenNumber(ctx context.Context, key entity.SlotKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	maxNumber := 0
	for _, t := range s.tokens {
		if t.SlotKey().String() == key.String() && t.Number() > maxNumber {
			maxNumber = t.Number()
		}
	}
	return maxNumber, nil
}

func (s *TokenStore) FindActiveByPatientAndDate(ctx context.Context, patientID string, visitDate time.Time) (*entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	day := entity.NormalizeDate(visitDate)
	for _, t := range s.tokens {
		if t.PatientID == patientID && entity.NormalizeDate(t.VisitDate).Equal(day) && t.IsActive() {
			c := clone(t)
			return &c, nil
		}
	}
	return nil, nil
}

func (s *TokenStore) FindActiveFrom(ctx context.Context, from time.Time, afterID string, limit int) ([]entity.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	day := entity.NormalizeDate(from)
	var out []entity.Token
	for _, t := range s.tokens {
		if t.ID > afterID && t.IsActive() && !entity.NormalizeDate(t.VisitDate).Before(day) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TokenStore) PromoteEmergency(ctx context.Context, token *entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	key := token.SlotKey()
	for id, t := range s.tokens {
		if id == token.ID || t.SlotKey().String() != key.String() || t.Status != entity.TokenStatusAllocated || t.TokenNumber == nil {
			continue
		}
		t.SetNumber(*t.TokenNumber + 1)
		s.tokens[id] = t
	}
	s.tokens[token.ID] = clone(*token)
	return nil
}

// All returns every stored token.
func (s *TokenStore) All() []entity.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, clone(t))
	}
	return out
}

func hasStatus(statuses []entity.TokenStatus, status entity.TokenStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func clone(t entity.Token) entity.Token {
	if t.TokenNumber != nil {
		n := *t.TokenNumber
		t.TokenNumber = &n
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	if t.ExpiredAt != nil {
		at := *t.ExpiredAt
		t.ExpiredAt = &at
	}
	return t
}

// DoctorStore is an in-memory DoctorRepository.
type DoctorStore struct {
	mu      sync.Mutex
	doctors map[string]entity.Doctor
	Err     error
}

func NewDoctorStore(doctors ...entity.Doctor) *DoctorStore {
	s := &DoctorStore{doctors: make(map[string]entity.Doctor)}
	for _, d := range doctors {
		s.doctors[d.ID] = d
	}
	return s
}

func (s *DoctorStore) Create(ctx context.Context, doctor *entity.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.doctors[doctor.ID] = *doctor
	return nil
}

func (s *DoctorStore) FindByID(ctx context.Context, id string) (*entity.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	d, ok := s.doctors[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *DoctorStore) FindAll(ctx context.Context) ([]entity.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]entity.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PatientStore is an in-memory PatientRepository.
type PatientStore struct {
	mu       sync.Mutex
	patients map[string]entity.Patient
	Err      error
}

func NewPatientStore(patients ...entity.Patient) *PatientStore {
	s := &PatientStore{patients: make(map[string]entity.Patient)}
	for _, p := range patients {
		s.patients[p.ID] = p
	}
	return s
}

func (s *PatientStore) Create(ctx context.Context, patient *entity.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.patients[patient.ID] = *patient
	return nil
}

func (s *PatientStore) FindByID(ctx context.Context, id string) (*entity.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *PatientStore) FindByPhone(ctx context.Context, phone string) (*entity.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.patients {
		if p.PhoneNumber == phone {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *PatientStore) FindAll(ctx context.Context) ([]entity.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]entity.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PatientStore) IncrementNoShow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p, ok := s.patients[id]
	if !ok {
		return nil
	}
	p.NoShowCount++
	s.patients[id] = p
	return nil
}

// EventStore is an in-memory TokenEventRepository.
type EventStore struct {
	mu     sync.Mutex
	events []entity.TokenEvent
	Err    error
}

func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Create(ctx context.Context, event *entity.TokenEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *EventStore) FindByTokenID(ctx context.Context, tokenID string) ([]entity.TokenEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []entity.TokenEvent
	for _, e := range s.events {
		if e.TokenID == tokenID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Types returns the recorded event types for a token in order.
func (s *EventStore) Types(tokenID string) []entity.TokenEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.TokenEventType
	for _, e := range s.events {
		if e.TokenID == tokenID {
			out = append(out, e.EventType)
		}
	}
	return out
}
