package repo

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "survey.db")
	db, err := OpenSQLite(path)
	if db != nil || err == nil {
		t.Fatalf("want error, got db=%v err=%v", db, err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("want a not-exist error, got %v", err)
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "survey.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, v := range want {
		var got string
		if err := db.Raw("PRAGMA " + name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", name, err)
		}
		if strings.ToLower(got) != v {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, v)
		}
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != maxOpenConns {
		t.Fatalf("MaxOpenConnections = %d", n)
	}
}

func TestAutoMigrate_CreatesEveryTable(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "survey.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("missing table for %T", m)
		}
	}

	ctx := context.Background()
	now := time.Now().UTC()
	s := &domain.Survey{ID: "s1", OwnerID: "u1", Slug: "team-pulse", Title: "Team pulse", Status: domain.SurveyDraft, CreatedAt: now, UpdatedAt: now}
	if err := CreateSurvey(ctx, db, s); err != nil {
		t.Fatalf("CreateSurvey: %v", err)
	}
	dup := *s
	dup.ID = "s2"
	if err := CreateSurvey(ctx, db, &dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate slug: want ErrDuplicate, got %v", err)
	}
}
