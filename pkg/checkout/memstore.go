package checkout

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	userID    string
	productID string
}

// MemoryStore implements every store interface in process memory behind
// one mutex. Suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[string]*Order
	ledger   map[string]IdempotencyRecord
	payments map[pairKey]ActivePayment
	locks    map[pairKey]Lock
	events   map[string]ProcessedEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*Order),
		ledger:   make(map[string]IdempotencyRecord),
		payments: make(map[pairKey]ActivePayment),
		locks:    make(map[pairKey]Lock),
		events:   make(map[string]ProcessedEvent),
	}
}

// Stores returns s wired into every slot.
func (s *MemoryStore) Stores() Stores {
	return Stores{Orders: s, Ledger: s, Payments: s, Locks: s, Events: s}
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return ErrOrderConflict
	}
	c := o.Clone()
	c.Version = 1
	s.orders[o.ID] = c
	o.Version = 1
	return nil
}

func (s *MemoryStore) CreateOrderWithKey(_ context.Context, o *Order, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return ErrOrderConflict
	}
	if cur, ok := s.ledger[rec.Key]; ok && rec.CreatedAt.Before(cur.ExpiresAt) {
		return ErrKeyTaken
	}
	c := o.Clone()
	c.Version = 1
	s.orders[o.ID] = c
	s.ledger[rec.Key] = rec
	o.Version = 1
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) FindOrderBySubscription(_ context.Context, subscriptionID string) (*Order, error) {
	return s.findOrder(func(o *Order) bool {
		return subscriptionID != "" && o.ProviderSubscriptionID == subscriptionID
	})
}

func (s *MemoryStore) FindOrderBySession(_ context.Context, sessionID string) (*Order, error) {
	return s.findOrder(func(o *Order) bool {
		return sessionID != "" && o.ProviderSessionID == sessionID
	})
}

// findOrder returns the most recently created match.
func (s *MemoryStore) findOrder(match func(*Order) bool) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Order
	for _, o := range s.orders {
		if match(o) && (found == nil || o.CreatedAt.After(found.CreatedAt)) {
			found = o
		}
	}
	if found == nil {
		return nil, ErrOrderNotFound
	}
	return found.Clone(), nil
}

func (s *MemoryStore) AttachSession(_ context.Context, orderID, sessionID, checkoutURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.ProviderSessionID = sessionID
	o.CheckoutURL = checkoutURL
	o.UpdatedAt = at
	o.Version++
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if cur.Version != o.Version {
		return ErrOrderConflict
	}
	cur.Status = o.Status
	cur.ProviderSubscriptionID = o.ProviderSubscriptionID
	cur.ProviderCustomerID = o.ProviderCustomerID
	cur.ExpiresAt = o.Clone().ExpiresAt
	cur.UpdatedAt = o.UpdatedAt
	cur.Version++
	o.Version = cur.Version
	return nil
}

func (s *MemoryStore) ListLapsedOrders(_ context.Context, now time.Time, limit int) ([]*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Order
	for _, o := range s.orders {
		if o.Status == StatusActive && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OrderCount returns the number of stored orders.
func (s *MemoryStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *MemoryStore) CheckIdempotency(_ context.Context, key, userID string, now time.Time) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ledger[key]
	if !ok || rec.UserID != userID || !now.Before(rec.ExpiresAt) {
		return "", false, nil
	}
	return rec.OrderID, true, nil
}

func (s *MemoryStore) RecordIdempotency(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.ledger[rec.Key]; ok && rec.CreatedAt.Before(cur.ExpiresAt) {
		return nil
	}
	s.ledger[rec.Key] = rec
	return nil
}

func (s *MemoryStore) PurgeExpiredIdempotency(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.ledger {
		if !now.Before(rec.ExpiresAt) {
			delete(s.ledger, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindActivePayment(_ context.Context, userID, productID string, now time.Time) (*ActivePayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[pairKey{userID, productID}]
	if !ok || !p.Live(now) {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) PutActivePayment(_ context.Context, p ActivePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[pairKey{p.UserID, p.ProductID}] = p
	return nil
}

func (s *MemoryStore) RemoveActivePayment(_ context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payments, pairKey{userID, productID})
	return nil
}

func (s *MemoryStore) PurgeExpiredActivePayments(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, p := range s.payments {
		if !p.Live(now) {
			delete(s.payments, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) TryAcquire(_ context.Context, l Lock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{l.UserID, l.ProductID}
	if cur, ok := s.locks[k]; ok && l.CreatedAt.Before(cur.ExpiresAt) {
		return false, nil
	}
	s.locks[k] = l
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, userID, productID, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{userID, productID}
	if cur, ok := s.locks[k]; ok && cur.RequestID == requestID {
		delete(s.locks, k)
	}
	return nil
}

func (s *MemoryStore) PurgeExpiredLocks(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, l := range s.locks {
		if !now.Before(l.ExpiresAt) {
			delete(s.locks, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClaimEvent(_ context.Context, e ProcessedEvent, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.events[e.EventID]; ok {
		if cur.Outcome != OutcomeProcessing || !cur.ProcessedAt.Before(staleBefore) {
			return false, nil
		}
	}
	e.Outcome = OutcomeProcessing
	s.events[e.EventID] = e
	return true, nil
}

func (s *MemoryStore) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.events[eventID]; ok && cur.Outcome == OutcomeProcessing {
		delete(s.events, eventID)
	}
	return nil
}

func (s *MemoryStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	return ok && e.Outcome != OutcomeProcessing, nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, e ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.events[e.EventID]; !ok || cur.Outcome == OutcomeProcessing {
		s.events[e.EventID] = e
	}
	return nil
}

func (s *MemoryStore) PruneEvents(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.events {
		if e.ProcessedAt.Before(before) {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}
