// Package ledger tracks per-identity stored texts against a quota and the
// global page visit counter. It owns nothing itself: records live in the
// storage layer and mutations are announced on the notification bus.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/bus"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/cipher"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

var (
	ErrIdentityMissing = errors.New("identity is required")
	ErrKeyMissing      = errors.New("retrieval key is required")
	ErrEmptyText       = errors.New("encrypted text is empty")
)

type Ledger struct {
	store     storage.Store
	bus       *bus.Bus
	textLimit int
}

// New returns a ledger over store publishing to b. textLimit applies when a
// record is created; zero or negative falls back to the default of 10.
func New(store storage.Store, b *bus.Bus, textLimit int) *Ledger {
	if textLimit <= 0 {
		textLimit = storage.DefaultTextLimit
	}
	return &Ledger{store: store, bus: b, textLimit: textLimit}
}

// StoreResult reports a successful store: the retrieval key handed to the
// user and whether a fresh record was created for the identity.
type StoreResult struct {
	Key     string
	Created bool
	Message string
}

// Snapshot is the counter view for one identity. Zero values with the
// default limit stand in for a missing record.
type Snapshot struct {
	VisitCount int
	TextCount  int
	TextLimit  int
}

// StoreText fingerprints the encrypted text and stores it under identity.
// The fingerprint doubles as the dedup key and the retrieval key. Fails with
// storage.ErrQuotaExceeded / storage.ErrDuplicateText without mutating the
// record.
func (l *Ledger) StoreText(ctx context.Context, identity, encrypted string) (StoreResult, error) {
	if identity == "" {
		return StoreResult{}, ErrIdentityMissing
	}
	if encrypted == "" {
		return StoreResult{}, ErrEmptyText
	}

	fp := cipher.Fingerprint(encrypted)
	created, err := l.store.AddText(ctx, identity, fp, encrypted, l.textLimit)
	if err != nil {
		return StoreResult{}, fmt.Errorf("store text: %w", err)
	}

	l.bus.Publish(bus.Event{Action: bus.ActionCreate, Identity: identity, Fingerprint: fp})

	msg := "encrypted text stored"
	if created {
		msg = "record created and encrypted text stored"
	}
	return StoreResult{Key: fp, Created: created, Message: msg}, nil
}

// RetrieveText returns the encrypted text stored under key for identity.
func (l *Ledger) RetrieveText(ctx context.Context, identity, key string) (string, error) {
	if identity == "" {
		return "", ErrIdentityMissing
	}
	if key == "" {
		return "", ErrKeyMissing
	}

	text, err := l.store.GetText(ctx, identity, key)
	if err != nil {
		return "", fmt.Errorf("retrieve text: %w", err)
	}
	return text, nil
}

// UsageSnapshot never fails: a missing record or a read error degrades to
// the zero snapshot with the default limit, matching what the page renders
// for a first-time visitor.
func (l *Ledger) UsageSnapshot(ctx context.Context, identity string) Snapshot {
	fallback := Snapshot{TextLimit: l.textLimit}
	if identity == "" {
		return fallback
	}

	rec, err := l.store.GetRecord(ctx, identity)
	if errors.Is(err, storage.ErrNotFound) {
		return fallback
	}
	if err != nil {
		slog.Error("usage snapshot read error", "err", err)
		return fallback
	}

	return Snapshot{
		VisitCount: rec.VisitCount,
		TextCount:  rec.TextCount,
		TextLimit:  rec.TextLimit,
	}
}

// IncrementVisitCounter bumps the global visit counter and returns the new
// value. Called once per page load.
func (l *Ledger) IncrementVisitCounter(ctx context.Context) (int64, error) {
	count, err := l.store.IncrementVisits(ctx)
	if err != nil {
		return 0, fmt.Errorf("increment visit counter: %w", err)
	}
	return count, nil
}

// UpdateText overwrites the text stored under fingerprint. A missing record
// or fingerprint is logged and reported as the storage error.
func (l *Ledger) UpdateText(ctx context.Context, identity, fingerprint, encrypted string) error {
	if identity == "" {
		return ErrIdentityMissing
	}
	if fingerprint == "" {
		return ErrKeyMissing
	}
	if encrypted == "" {
		return ErrEmptyText
	}

	if err := l.store.UpdateText(ctx, identity, fingerprint, encrypted); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("update for unknown text", "identity", identity, "fingerprint", fingerprint)
		}
		return fmt.Errorf("update text: %w", err)
	}

	l.bus.Publish(bus.Event{Action: bus.ActionUpdate, Identity: identity, Fingerprint: fingerprint})
	return nil
}

// DeleteText removes the text stored under fingerprint and publishes the
// delete action.
func (l *Ledger) DeleteText(ctx context.Context, identity, fingerprint string) error {
	if identity == "" {
		return ErrIdentityMissing
	}
	if fingerprint == "" {
		return ErrKeyMissing
	}

	if err := l.store.DeleteText(ctx, identity, fingerprint); err != nil {
		return fmt.Errorf("delete text: %w", err)
	}

	l.bus.Publish(bus.Event{Action: bus.ActionDelete, Identity: identity, Fingerprint: fingerprint})
	return nil
}

// TextLimit is the quota applied to newly created records.
func (l *Ledger) TextLimit() int {
	return l.textLimit
}
