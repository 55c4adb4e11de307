package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadMigrations_VersionOrder(t *testing.T) {
	dir := t.TempDir()
	// written out of order on purpose
	writeMigrations(t, dir, map[string]string{
		"010_audit.sql":     "CREATE TABLE audit_log (id UUID PRIMARY KEY);",
		"002_patients.sql":  "CREATE TABLE patient (id UUID PRIMARY KEY);",
		"001_catalog.sql":   "CREATE TABLE medication (id UUID PRIMARY KEY);",
		"005_inventory.sql": "CREATE TABLE dispensary (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}
	wantVersions := []int{1, 2, 5, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migration[%d]: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_catalog.sql" {
		t.Errorf("expected 001_catalog.sql first, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE medication (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL for first migration: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_catalog.sql":  "SELECT 1;",
		"002_patients.sql": "SELECT 2;",
		"notes.txt":        "not sql",
		"seed.sql":         "-- no version prefix",
		"abc_bad.sql":      "-- non-numeric prefix",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("unexpected versions: %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_EmptyAndMissingDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations on empty dir: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations from an empty dir, got %d", len(migrations))
	}

	if _, err := NewMigrator(nil, filepath.Join(t.TempDir(), "missing")).LoadMigrations(); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestMigrationStatus_PendingHasNoAppliedAt(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_catalog.sql":  "SELECT 1;",
		"002_patients.sql": "SELECT 2;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	applied := map[int]bool{1: true}
	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}

	if !statuses[0].Applied {
		t.Error("expected 001 applied")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected 002 pending with no AppliedAt")
	}
}
