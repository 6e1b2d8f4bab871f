package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultTextLimit is the per-identity quota applied when a record is
// created and nothing overrides it.
const DefaultTextLimit = 10

// VisitCounterKey is the fixed document id of the global visit counter in
// the page-stats collection.
const VisitCounterKey = "visitCounter"

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("text limit reached for this identity")
	ErrDuplicateText = errors.New("text already stored for this identity")
)

// UsageRecord is the per-identity document: a map of fingerprint to
// encrypted text plus counters. TextCount == len(Texts) at all times;
// TextCount <= TextLimit is enforced before any insert.
type UsageRecord struct {
	Identity   string
	TextCount  int
	TextLimit  int
	VisitCount int
	Texts      map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GeoRecord is cached geolocation data for one address.
type GeoRecord struct {
	IP          string
	Country     string
	CountryCode string
	City        string
	LocalTime   string
	CreatedAt   time.Time
}

// Store is the document-store contract: per-identity usage records, a
// single global visit counter, and geolocation persistence.
type Store interface {
	// AddText stores encrypted text under identity keyed by fingerprint,
	// creating the record (with the given limit) if absent. The quota and
	// duplicate checks and the insert are a single atomic operation; two
	// concurrent callers cannot both pass the checks. Returns true when a
	// new record was created rather than updated.
	AddText(ctx context.Context, identity, fingerprint, encrypted string, limit int) (created bool, err error)

	// GetText returns the stored text, or ErrNotFound when either the
	// record or the fingerprint is absent.
	GetText(ctx context.Context, identity, fingerprint string) (string, error)

	// UpdateText overwrites an existing text and bumps the record's
	// updated-at timestamp. ErrNotFound when record or fingerprint is absent.
	UpdateText(ctx context.Context, identity, fingerprint, encrypted string) error

	// DeleteText removes a text and decrements the count. ErrNotFound when
	// record or fingerprint is absent.
	DeleteText(ctx context.Context, identity, fingerprint string) error

	// GetRecord returns the full usage record, or ErrNotFound.
	GetRecord(ctx context.Context, identity string) (UsageRecord, error)

	// IncrementVisits atomically increments the global visit counter,
	// creating it at 1, and returns the new value.
	IncrementVisits(ctx context.Context) (int64, error)

	GetGeo(ctx context.Context, ip string) (GeoRecord, error)
	PutGeo(ctx context.Context, rec GeoRecord) error
}
