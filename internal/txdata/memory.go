package txdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]*Transaction
	records    []*Record
	recordKeys map[string]struct{}
	events     []*WebhookEvent
	eventKeys  map[string]struct{}
	nowFunc    func() time.Time
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Transaction),
		recordKeys: make(map[string]struct{}),
		eventKeys:  make(map[string]struct{}),
		nowFunc:    time.Now,
	}
}

func cloneParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	clone := make(map[string]string, len(params))
	for k, v := range params {
		clone[k] = v
	}
	return clone
}

func cloneTransaction(tx *Transaction) *Transaction {
	clone := *tx
	clone.LatestRequest = cloneParams(tx.LatestRequest)
	clone.LatestResponse = cloneParams(tx.LatestResponse)
	return &clone
}

func cloneRecord(rec *Record) *Record {
	clone := *rec
	clone.Request = cloneParams(rec.Request)
	clone.Response = cloneParams(rec.Response)
	return &clone
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.OrderReference == tx.OrderReference {
			return ErrDuplicate
		}
		if tx.TxID != "" && existing.TxID == tx.TxID {
			return ErrDuplicate
		}
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := s.nowFunc()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.byID[tx.ID] = cloneTransaction(tx)
	return nil
}

// ByID implements Store.
func (s *MemoryStore) ByID(_ context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// ByTxID implements Store.
func (s *MemoryStore) ByTxID(_ context.Context, txID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupByTxID(txID)
}

func (s *MemoryStore) lookupByTxID(txID string) (*Transaction, error) {
	if txID == "" {
		return nil, ErrNotFound
	}
	for _, tx := range s.byID {
		if tx.TxID == txID {
			return cloneTransaction(tx), nil
		}
	}
	return nil, ErrNotFound
}

// ByReference implements Store.
func (s *MemoryStore) ByReference(_ context.Context, reference string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.byID {
		if tx.OrderReference == reference {
			return cloneTransaction(tx), nil
		}
	}
	return nil, ErrNotFound
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[tx.ID]; !ok {
		return ErrNotFound
	}
	tx.UpdatedAt = s.nowFunc()
	s.byID[tx.ID] = cloneTransaction(tx)
	return nil
}

// NextSequenceNumber implements Store.
func (s *MemoryStore) NextSequenceNumber(_ context.Context, txID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tx := range s.byID {
		if tx.TxID == txID {
			tx.SequenceNumber++
			tx.UpdatedAt = s.nowFunc()
			s.byID[id] = tx
			return tx.SequenceNumber, nil
		}
	}
	return 0, ErrNotFound
}

// TransactionState implements Store.
func (s *MemoryStore) TransactionState(_ context.Context, txID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.lookupByTxID(txID)
	if err != nil {
		return "", err
	}
	return tx.State, nil
}

// SetTransactionState implements Store.
func (s *MemoryStore) SetTransactionState(_ context.Context, txID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tx := range s.byID {
		if tx.TxID == txID {
			tx.State = state
			tx.UpdatedAt = s.nowFunc()
			s.byID[id] = tx
			return nil
		}
	}
	return ErrNotFound
}

// AppendRecord implements Store.
func (s *MemoryStore) AppendRecord(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%d", rec.TransactionID, rec.SequenceNumber)
	if _, ok := s.recordKeys[key]; ok {
		return ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc()
	}
	s.recordKeys[key] = struct{}{}
	s.records = append(s.records, cloneRecord(rec))
	return nil
}

// Records implements Store.
func (s *MemoryStore) Records(_ context.Context, transactionID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if rec.TransactionID == transactionID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

// RecordWebhookEvent implements Store. Deliveries are deduplicated on
// (txid, txaction, sequencenumber), matching the postgres unique index.
func (s *MemoryStore) RecordWebhookEvent(_ context.Context, event *WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%d", event.TxID, event.TxAction, event.SequenceNumber)
	if _, ok := s.eventKeys[key]; ok {
		return ErrDuplicate
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.nowFunc()
	}
	s.eventKeys[key] = struct{}{}
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

// WebhookEvents returns recorded events, for tests.
func (s *MemoryStore) WebhookEvents() []*WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*WebhookEvent, len(s.events))
	copy(out, s.events)
	return out
}
