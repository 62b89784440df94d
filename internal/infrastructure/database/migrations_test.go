package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nerrad567/gray-logic-hub/migrations"
)

// testMigrations is a two-step schema used by the migration tests.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_100000_create_rooms.up.sql": {Data: []byte(
			`CREATE TABLE rooms (id TEXT PRIMARY KEY, name TEXT NOT NULL);`)},
		"20261001_100000_create_rooms.down.sql": {Data: []byte(
			`DROP TABLE rooms;`)},
		"20261001_110000_create_readings.up.sql": {Data: []byte(
			`CREATE TABLE readings (device_id TEXT NOT NULL, value REAL NOT NULL);`)},
		"20261001_110000_create_readings.down.sql": {Data: []byte(
			`DROP TABLE readings;`)},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"rooms", "readings"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}

	// Running again is a no-op
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
}

// TestMigrateHubSchema applies the embedded hub migrations.
func TestMigrateHubSchema(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"scene_executions", "cron_executions", "device_status_history", "location_updates"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}
}

// TestMigrateDown verifies migration rollback.
func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "readings") {
		t.Error("latest migration was not reverted")
	}
	if !tableExists(t, db, "rooms") {
		t.Error("earlier migration should be untouched")
	}

	_, pending, err := db.GetMigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "create_readings" {
		t.Errorf("pending = %+v, want create_readings", pending)
	}
}

// TestMigrateDownWithoutDownSQL refuses to revert a one-way migration.
func TestMigrateDownWithoutDownSQL(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	fsys := fstest.MapFS{
		"20261001_100000_one_way.up.sql": {Data: []byte(`CREATE TABLE one_way (id INTEGER);`)},
	}
	ctx := context.Background()
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); !errors.Is(err, ErrNoDownSQL) {
		t.Errorf("MigrateDown() error = %v, want ErrNoDownSQL", err)
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
	if err := db.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// TestLoadMigrationsOrphanDown rejects a down file with no up file.
func TestLoadMigrationsOrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"20261001_100000_orphan.down.sql": {Data: []byte(`DROP TABLE x;`)},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() expected error for orphan down file")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20261001_120100_scene_executions.up.sql",
			wantVersion: "20261001_120100",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20261001_120100_scene_executions.down.sql",
			wantVersion: "20261001_120100",
			wantIsUp:    false,
			wantOk:      true,
		},
		{name: "not sql file", filename: "embed.go", wantOk: false},
		{name: "missing direction", filename: "20261001_120100_scene_executions.sql", wantOk: false},
		{name: "invalid format", filename: "invalid.up.sql", wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok {
				if version != tt.wantVersion {
					t.Errorf("version = %v, want %v", version, tt.wantVersion)
				}
				if isUp != tt.wantIsUp {
					t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
				}
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261001_120100_scene_executions.up.sql", "scene_executions"},
		{"20261001_120200_cron_executions.down.sql", "cron_executions"},
		{"20261001_120000_device_status_history.up.sql", "device_status_history"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := extractMigrationName(tt.filename); got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
