package db

import (
	"path/filepath"
	"testing"
)

func TestNewDBAppliesAllMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("fresh database reports dirty state")
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("version after NewDB = %d, want latest %d", version, latest)
	}
}

func TestMigrateDownAndBackUp(t *testing.T) {
	db := setupTestDB(t)

	before, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	after, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if after >= before {
		t.Errorf("version after down = %d, want below %d", after, before)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	final, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if final != before {
		t.Errorf("version after re-up = %d, want %d", final, before)
	}
}

func TestOpenDBDoesNotMigrate(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("un-migrated database reports version %d dirty %v, want 0 false", version, dirty)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// NewDB already migrated; a second up must be a no-op, not an error.
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("repeat MigrateUp failed: %v", err)
	}
}

func TestLatestMigrationVersion(t *testing.T) {
	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if latest < 2 {
		t.Errorf("latest migration version = %d, want at least 2", latest)
	}
}
