package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// AddText runs the existence, quota, and duplicate checks and the insert in
// one transaction holding a row lock, so concurrent writers to the same
// identity serialize instead of both passing the checks.
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
	var exists bool
	err = tx.QueryRowContext(ctx, `
SELECT text_count, text_limit, texts ? $2
FROM usage_records
WHERE ip_address = $1
FOR UPDATE`,
		identity,
		fingerprint,
	).Scan(&textCount, &textLimit, &exists)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
INSERT INTO usage_records (ip_address, text_count, text_limit, texts)
VALUES ($1, 1, $2, jsonb_build_object($3::text, $4::text))`,
			identity,
			limit,
			fingerprint,
			encrypted,
		)
		if err != nil {
			return false, fmt.Errorf("insert usage record: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("lock usage record: %w", err)
	default:
		if textCount >= textLimit {
			return false, storage.ErrQuotaExceeded
		}
		if exists {
			return false, storage.ErrDuplicateText
		}
		_, err = tx.ExecContext(ctx, `
UPDATE usage_records
SET text_count = text_count + 1,
    texts = texts || jsonb_build_object($2::text, $3::text),
    updated_at = now()
WHERE ip_address = $1`,
			identity,
			fingerprint,
			encrypted,
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
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT texts->>$2
FROM usage_records
WHERE ip_address = $1`,
		identity,
		fingerprint,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get text: %w", err)
	}
	if !text.Valid {
		return "", storage.ErrNotFound
	}
	return text.String, nil
}

func (s *Store) UpdateText(ctx context.Context, identity, fingerprint, encrypted string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE usage_records
SET texts = jsonb_set(texts, ARRAY[$2], to_jsonb($3::text)),
    updated_at = now()
WHERE ip_address = $1
  AND texts ? $2`,
		identity,
		fingerprint,
		encrypted,
	)
	if err != nil {
		return fmt.Errorf("update text: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update text rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteText(ctx context.Context, identity, fingerprint string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE usage_records
SET texts = texts - $2,
    text_count = text_count - 1,
    updated_at = now()
WHERE ip_address = $1
  AND texts ? $2`,
		identity,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("delete text: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete text rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, identity string) (storage.UsageRecord, error) {
	rec := storage.UsageRecord{Identity: identity}
	var textsJSON []byte
	err := s.db.QueryRowContext(ctx, `
SELECT text_count, text_limit, visit_count, texts, created_at, updated_at
FROM usage_records
WHERE ip_address = $1`,
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
	err := s.db.QueryRowContext(ctx, `
INSERT INTO page_stats (id, visit_count)
VALUES ($1, 1)
ON CONFLICT (id) DO UPDATE
SET visit_count = page_stats.visit_count + 1,
    updated_at = now()
RETURNING visit_count`,
		storage.VisitCounterKey,
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
WHERE ip_address = $1`,
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
INSERT INTO geo_records (ip_address, country, country_code, city, local_time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (ip_address) DO UPDATE
SET country = EXCLUDED.country,
    country_code = EXCLUDED.country_code,
    city = EXCLUDED.city,
    local_time = EXCLUDED.local_time`,
		rec.IP,
		rec.Country,
		rec.CountryCode,
		rec.City,
		rec.LocalTime,
	)
	if err != nil {
		return fmt.Errorf("put geo record: %w", err)
	}
	return nil
}
