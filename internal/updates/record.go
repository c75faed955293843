package updates

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRecordNotFound is returned by a RecordStore when no live record exists.
var ErrRecordNotFound = errors.New("update record not found")

// Record is the cached outcome of one package check: a payload on success,
// or an error with the time it was seen.
type Record struct {
	DID       string    `json:"did"`
	Payload   *Payload  `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Failed reports whether the record holds an error.
func (r *Record) Failed() bool { return r.Error != "" }

// Expired reports whether the record is past its TTL at now.
func (r *Record) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// RetryIn returns how long until the record expires, never negative.
func (r *Record) RetryIn(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RecordStore keeps update records keyed by DID. Implementations drop
// records once they expire.
type RecordStore interface {
	Get(ctx context.Context, did string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, did string) error
}

// MemoryStore is a process-local RecordStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

// Get returns the record for did, or ErrRecordNotFound when it is absent or
// expired.
func (s *MemoryStore) Get(_ context.Context, did string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[did]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.Expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.records[did]; ok && cur == rec {
			delete(s.records, did)
		}
		s.mu.Unlock()
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// Put stores a copy of rec.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	cp := *rec
	s.mu.Lock()
	s.records[rec.DID] = &cp
	s.mu.Unlock()
	return nil
}

// Delete removes the record for did.
func (s *MemoryStore) Delete(_ context.Context, did string) error {
	s.mu.Lock()
	delete(s.records, did)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
