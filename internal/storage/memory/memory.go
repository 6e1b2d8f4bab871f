// Package memory is a mutex-guarded in-memory implementation of the storage
// contract. It backs unit tests and the storage-free dev driver; nothing
// survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

type Store struct {
	mu      sync.Mutex
	records map[string]*storage.UsageRecord
	geo     map[string]storage.GeoRecord
	visits  int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[string]*storage.UsageRecord),
		geo:     make(map[string]storage.GeoRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) AddText(ctx context.Context, identity, fingerprint, encrypted string, limit int) (bool, error) {
	if limit <= 0 {
		limit = storage.DefaultTextLimit
	}

	// The mutex is held across the whole check-and-insert, which is what
	// makes the quota and duplicate checks atomic.
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		now := s.now()
		s.records[identity] = &storage.UsageRecord{
			Identity:  identity,
			TextCount: 1,
			TextLimit: limit,
			Texts:     map[string]string{fingerprint: encrypted},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return true, nil
	}

	if rec.TextCount >= rec.TextLimit {
		return false, storage.ErrQuotaExceeded
	}
	if _, exists := rec.Texts[fingerprint]; exists {
		return false, storage.ErrDuplicateText
	}

	rec.Texts[fingerprint] = encrypted
	rec.TextCount++
	rec.UpdatedAt = s.now()
	return false, nil
}

func (s *Store) GetText(ctx context.Context, identity, fingerprint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return "", storage.ErrNotFound
	}
	text, ok := rec.Texts[fingerprint]
	if !ok {
		return "", storage.ErrNotFound
	}
	return text, nil
}

func (s *Store) UpdateText(ctx context.Context, identity, fingerprint, encrypted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return storage.ErrNotFound
	}
	if _, exists := rec.Texts[fingerprint]; !exists {
		return storage.ErrNotFound
	}
	rec.Texts[fingerprint] = encrypted
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteText(ctx context.Context, identity, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return storage.ErrNotFound
	}
	if _, exists := rec.Texts[fingerprint]; !exists {
		return storage.ErrNotFound
	}
	delete(rec.Texts, fingerprint)
	rec.TextCount--
	rec.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetRecord(ctx context.Context, identity string) (storage.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return storage.UsageRecord{}, storage.ErrNotFound
	}

	out := *rec
	out.Texts = make(map[string]string, len(rec.Texts))
	for k, v := range rec.Texts {
		out.Texts[k] = v
	}
	return out, nil
}

func (s *Store) IncrementVisits(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.visits++
	return s.visits, nil
}

func (s *Store) GetGeo(ctx context.Context, ip string) (storage.GeoRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.geo[ip]
	if !ok {
		return storage.GeoRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) PutGeo(ctx context.Context, rec storage.GeoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.geo[rec.IP] = rec
	return nil
}
