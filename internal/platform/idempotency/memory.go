package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process. Used by tests and the local profile.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	entry, ok := s.entries[id]
	if !ok || entry.expired(now) {
		entry = pendingEntry(key, fingerprint, now, ttl)
		s.entries[id] = entry
		return OutcomeFresh, entry, nil
	}
	if entry.Fingerprint != fingerprint {
		return 0, Entry{}, ErrFingerprintMismatch
	}
	if entry.Done {
		return OutcomeReplay, entry, nil
	}
	return OutcomeInFlight, entry, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, entry Entry, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(entry.Key)
	if existing, ok := s.entries[id]; ok {
		if existing.Fingerprint != entry.Fingerprint {
			return ErrFingerprintMismatch
		}
		entry.CreatedAt = existing.CreatedAt
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry.Done = true
	entry.Body = append([]byte(nil), entry.Body...)
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

// Abandon implements Store.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, documentID(key))
	s.mu.Unlock()
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if limit > 0 && removed >= limit {
			break
		}
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}
