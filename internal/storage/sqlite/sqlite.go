// Package sqlite implements the storage contract on a local SQLite database
// (modernc.org/sqlite, pure Go) for single-binary deployments. The texts map
// is kept as a JSON document column, mirroring the Postgres store's shape;
// map manipulation happens in Go inside a transaction, which SQLite's single
// writer serializes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) AddText(ctx context.Context, identity, fingerprint, encrypted string, limit int) (bool, error) {
	if limit <= 0 {
		limit = storage.DefaultTextLimit
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin add text: %w", err)
	}
	defer tx.Rollback()

	var textCount, textLimit int
	var textsJSON []byte
	err = tx.QueryRowContext(ctx, `
SELECT text_count, text_limit, texts
FROM usage_records
WHERE ip_address = ?`,
		identity,
	).Scan(&textCount, &textLimit, &textsJSON)

	now := s.now()
	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc, _ := json.Marshal(map[string]string{fingerprint: encrypted})
		_, err = tx.ExecContext(ctx, `
INSERT INTO usage_records (ip_address, text_count, text_limit, texts, created_at, updated_at)
VALUES (?, 1, ?, ?, ?, ?)`,
			identity, limit, string(doc), now, now,
		)
		if err != nil {
			return false, fmt.Errorf("insert usage record: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("read usage record: %w", err)
	default:
		if textCount >= textLimit {
			return false, storage.ErrQuotaExceeded
		}
		texts := map[string]string{}
		if err := json.Unmarshal(textsJSON, &texts); err != nil {
			return false, fmt.Errorf("decode texts: %w", err)
		}
		if _, exists := texts[fingerprint]; exists {
			return false, storage.ErrDuplicateText
		}
		texts[fingerprint] = encrypted
		doc, _ := json.Marshal(texts)
		_, err = tx.ExecContext(ctx, `
UPDATE usage_records
SET text_count = text_count + 1, texts = ?, updated_at = ?
WHERE ip_address = ?`,
			string(doc), now, identity,
		)
		if err != nil {
			return false, fmt.Errorf("append text: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit add text: %w", err)
	}
	return created, nil
}

func (s *Store) GetText(ctx context.Context, identity, fingerprint string) (string, error) {
	texts, err := s.readTexts(ctx, s.db, identity)
	if err != nil {
		return "", err
	}
	text, ok := texts[fingerprint]
	if !ok {
		return "", storage.ErrNotFound
	}
	return text, nil
}

func (s *Store) UpdateText(ctx context.Context, identity, fingerprint, encrypted string) error {
	return s.mutateTexts(ctx, identity, func(texts map[string]string) (int, error) {
		if _, exists := texts[fingerprint]; !exists {
			return 0, storage.ErrNotFound
		}
		texts[fingerprint] = encrypted
		return 0, nil
	})
}

func (s *Store) DeleteText(ctx context.Context, identity, fingerprint string) error {
	return s.mutateTexts(ctx, identity, func(texts map[string]string) (int, error) {
		if _, exists := texts[fingerprint]; !exists {
			return 0, storage.ErrNotFound
		}
		delete(texts, fingerprint)
		return -1, nil
	})
}

// mutateTexts applies fn to the decoded texts map inside a transaction and
// writes the result back, adjusting text_count by the returned delta.
func (s *Store) mutateTexts(ctx context.Context, identity string, fn func(map[string]string) (int, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mutate texts: %w", err)
	}
	defer tx.Rollback()

	texts, err := s.readTexts(ctx, tx, identity)
	if err != nil {
		return err
	}

	delta, err := fn(texts)
	if err != nil {
		return err
	}

	doc, _ := json.Marshal(texts)
	_, err = tx.ExecContext(ctx, `
UPDATE usage_records
SET texts = ?, text_count = text_count + ?, updated_at = ?
WHERE ip_address = ?`,
		string(doc), delta, s.now(), identity,
	)
	if err != nil {
		return fmt.Errorf("write texts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mutate texts: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) readTexts(ctx context.Context, q querier, identity string) (map[string]string, error) {
	var textsJSON []byte
	err := q.QueryRowContext(ctx, `SELECT texts FROM usage_records WHERE ip_address = ?`, identity).Scan(&textsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read texts: %w", err)
	}
	texts := map[string]string{}
	if err := json.Unmarshal(textsJSON, &texts); err != nil {
		return nil, fmt.Errorf("decode texts: %w", err)
	}
	return texts, nil
}

func (s *Store) GetRecord(ctx context.Context, identity string) (storage.UsageRecord, error) {
	rec := storage.UsageRecord{Identity: identity}
	var textsJSON []byte
	err := s.db.QueryRowContext(ctx, `
SELECT text_count, text_limit, visit_count, texts, created_at, updated_at
FROM usage_records
WHERE ip_address = ?`,
		identity,
	).Scan(&rec.TextCount, &rec.TextLimit, &rec.VisitCount, &textsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.UsageRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.UsageRecord{}, fmt.Errorf("get usage record: %w", err)
	}
	if err := json.Unmarshal(textsJSON, &rec.Texts); err != nil {
		return storage.UsageRecord{}, fmt.Errorf("decode texts: %w", err)
	}
	return rec, nil
}

func (s *Store) IncrementVisits(ctx context.Context) (int64, error) {
	var count int64
	now := s.now()
	err := s.db.QueryRowContext(ctx, `
INSERT INTO page_stats (id, visit_count, created_at, updated_at)
VALUES (?, 1, ?, ?)
ON CONFLICT (id) DO UPDATE
SET visit_count = visit_count + 1, updated_at = excluded.updated_at
RETURNING visit_count`,
		storage.VisitCounterKey, now, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment visits: %w", err)
	}
	return count, nil
}

func (s *Store) GetGeo(ctx context.Context, ip string) (storage.GeoRecord, error) {
	rec := storage.GeoRecord{IP: ip}
	err := s.db.QueryRowContext(ctx, `
SELECT country, country_code, city, local_time, created_at
FROM geo_records
WHERE ip_address = ?`,
		ip,
	).Scan(&rec.Country, &rec.CountryCode, &rec.City, &rec.LocalTime, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.GeoRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.GeoRecord{}, fmt.Errorf("get geo record: %w", err)
	}
	return rec, nil
}

func (s *Store) PutGeo(ctx context.Context, rec storage.GeoRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO geo_records (ip_address, country, country_code, city, local_time, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (ip_address) DO UPDATE
SET country = excluded.country,
    country_code = excluded.country_code,
    city = excluded.city,
    local_time = excluded.local_time`,
		rec.IP, rec.Country, rec.CountryCode, rec.City, rec.LocalTime, s.now(),
	)
	if err != nil {
		return fmt.Errorf("put geo record: %w", err)
	}
	return nil
}
