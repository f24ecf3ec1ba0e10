package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryData struct {
	users    map[int64]User
	balances map[int64]CreditBalance
	events   map[string]PaymentEvent
	consents map[uuid.UUID]Consent
	nextID   int64
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		users:    make(map[int64]User, len(d.users)),
		balances: make(map[int64]CreditBalance, len(d.balances)),
		events:   make(map[string]PaymentEvent, len(d.events)),
		consents: make(map[uuid.UUID]Consent, len(d.consents)),
		nextID:   d.nextID,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.consents {
		c.consents[k] = v
	}
	return c
}

// memoryStore serializes every transaction behind one mutex, which gives the
// same observable ordering as row locks for tests.
type memoryStore struct {
	mu   sync.RWMutex
	data *memoryData
}

// NewMemory creates a concurrency-safe in-memory store useful for unit tests.
func NewMemory() Store {
	return &memoryStore{data: &memoryData{
		users:    make(map[int64]User),
		balances: make(map[int64]CreditBalance),
		events:   make(map[string]PaymentEvent),
		consents: make(map[uuid.UUID]Consent),
	}}
}

func (s *memoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	if err := fn(ctx, &memoryTx{data: snapshot}); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

func (s *memoryStore) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return User{}, ErrConflict
		}
	}
	s.data.nextID++
	user.ID = s.data.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.data.users[user.ID] = user
	return user, nil
}

func (s *memoryStore) GetUser(_ context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.user(id)
}

func (s *memoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.userByEmail(email)
}

func (s *memoryStore) SetStripeCustomerID(_ context.Context, userID int64, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.data.user(userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		user.StripeCustomerID = customerID
		s.data.users[userID] = user
	}
	return user.StripeCustomerID, nil
}

func (s *memoryStore) GetBalance(_ context.Context, userID int64) (CreditBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.data.balances[userID]; ok {
		return b, nil
	}
	return CreditBalance{UserID: userID}, nil
}

func (s *memoryStore) GetConsent(_ context.Context, id uuid.UUID) (Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.consents[id]
	if !ok {
		return Consent{}, ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) ListConsents(_ context.Context, userID int64) ([]Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Consent
	for _, c := range s.data.consents {
		if c.DeletedByInitiator {
			continue
		}
		if c.InitiatorID == userID || c.PartnerID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (d *memoryData) user(id int64) (User, error) {
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (d *memoryData) userByEmail(email string) (User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

type memoryTx struct {
	data *memoryData
}

func (t *memoryTx) GetUser(_ context.Context, id int64) (User, error) {
	return t.data.user(id)
}

func (t *memoryTx) FindUserByEmail(_ context.Context, email string) (User, error) {
	return t.data.userByEmail(email)
}

func (t *memoryTx) GetBalance(_ context.Context, userID int64) (CreditBalance, error) {
	if b, ok := t.data.balances[userID]; ok {
		return b, nil
	}
	return CreditBalance{UserID: userID}, nil
}

func (t *memoryTx) LockBalance(_ context.Context, userID int64) (CreditBalance, error) {
	if _, ok := t.data.users[userID]; !ok {
		return CreditBalance{}, ErrNotFound
	}
	b, ok := t.data.balances[userID]
	if !ok {
		b = CreditBalance{UserID: userID}
		t.data.balances[userID] = b
	}
	return b, nil
}

func (t *memoryTx) SaveBalance(_ context.Context, balance CreditBalance) error {
	if _, ok := t.data.balances[balance.UserID]; !ok {
		return ErrNotFound
	}
	if balance.Quantity < 0 {
		return ErrConflict
	}
	t.data.balances[balance.UserID] = balance
	return nil
}

func (t *memoryTx) InsertPaymentEvent(_ context.Context, ev PaymentEvent) (bool, error) {
	if _, exists := t.data.events[ev.PaymentID]; exists {
		return false, nil
	}
	if _, ok := t.data.users[ev.UserID]; !ok {
		return false, ErrNotFound
	}
	t.data.events[ev.PaymentID] = ev
	return true, nil
}

func (t *memoryTx) InsertConsent(_ context.Context, c Consent) error {
	if _, exists := t.data.consents[c.ID]; exists {
		return ErrConflict
	}
	t.data.consents[c.ID] = c
	return nil
}

func (t *memoryTx) LockConsent(_ context.Context, id uuid.UUID) (Consent, error) {
	c, ok := t.data.consents[id]
	if !ok {
		return Consent{}, ErrNotFound
	}
	return c, nil
}

func (t *memoryTx) UpdateConsent(_ context.Context, c Consent) error {
	if _, ok := t.data.consents[c.ID]; !ok {
		return ErrNotFound
	}
	t.data.consents[c.ID] = c
	return nil
}
