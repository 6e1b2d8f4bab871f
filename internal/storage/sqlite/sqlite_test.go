package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/database"
	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if _, err := database.NewMigrator(conn, database.DriverSQLite).Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return New(conn.DB())
}

func TestAddText_CreateDuplicateQuota(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.AddText(ctx, "203.0.113.1", "fp1", "caisai", 2)
	if err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if !created {
		t.Error("first AddText should report created")
	}

	if _, err := s.AddText(ctx, "203.0.113.1", "fp1", "caisai", 2); !errors.Is(err, storage.ErrDuplicateText) {
		t.Errorf("duplicate: got %v", err)
	}
	if created, err := s.AddText(ctx, "203.0.113.1", "fp2", "roberjai", 2); err != nil || created {
		t.Errorf("second AddText: created=%v err=%v", created, err)
	}
	if _, err := s.AddText(ctx, "203.0.113.1", "fp3", "third", 2); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Errorf("over quota: got %v", err)
	}

	rec, err := s.GetRecord(ctx, "203.0.113.1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.TextCount != 2 || len(rec.Texts) != 2 || rec.TextLimit != 2 {
		t.Errorf("record = %+v", rec)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestGetUpdateDeleteText(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetText(ctx, "ip", "fp"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing record: got %v", err)
	}

	if _, err := s.AddText(ctx, "ip", "fp", "old", 10); err != nil {
		t.Fatalf("AddText: %v", err)
	}
	if err := s.UpdateText(ctx, "ip", "missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update missing fingerprint: got %v", err)
	}
	if err := s.UpdateText(ctx, "ip", "fp", "new"); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	if text, _ := s.GetText(ctx, "ip", "fp"); text != "new" {
		t.Errorf("after update text = %q", text)
	}

	if err := s.DeleteText(ctx, "ip", "fp"); err != nil {
		t.Fatalf("DeleteText: %v", err)
	}
	rec, err := s.GetRecord(ctx, "ip")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.TextCount != 0 || len(rec.Texts) != 0 {
		t.Errorf("after delete record = %+v", rec)
	}
	if err := s.DeleteText(ctx, "ip", "fp"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("double delete: got %v", err)
	}
}

func TestAddText_ManyIdentities(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("198.51.100.%d", i)
		if _, err := s.AddText(ctx, id, "fp", "text", 10); err != nil {
			t.Fatalf("AddText %s: %v", id, err)
		}
	}
	rec, err := s.GetRecord(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.TextCount != 1 {
		t.Errorf("identities are not isolated: %+v", rec)
	}
}

func TestIncrementVisits(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementVisits(ctx)
		if err != nil {
			t.Fatalf("IncrementVisits: %v", err)
		}
		if got != want {
			t.Errorf("IncrementVisits = %d, want %d", got, want)
		}
	}
}

func TestGeoRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetGeo(ctx, "203.0.113.5"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing geo: got %v", err)
	}
	rec := storage.GeoRecord{IP: "203.0.113.5", Country: "Chile", CountryCode: "CL", City: "Santiago", LocalTime: "12:30"}
	if err := s.PutGeo(ctx, rec); err != nil {
		t.Fatalf("PutGeo: %v", err)
	}
	rec.City = "Valparaiso"
	if err := s.PutGeo(ctx, rec); err != nil {
		t.Fatalf("PutGeo upsert: %v", err)
	}
	got, err := s.GetGeo(ctx, "203.0.113.5")
	if err != nil {
		t.Fatalf("GetGeo: %v", err)
	}
	if got.City != "Valparaiso" {
		t.Errorf("GetGeo = %+v", got)
	}
}
