package database

import (
	"io/fs"
	"strings"
	"testing"
)

// 埋め込みマイグレーションにup/downのペアが揃っていることを検証
func TestMigrations_UpDownPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migration files found")
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file name: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			t.Errorf("missing down migration for %s", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("missing up migration for %s", base)
		}
	}
}

// 初期マイグレーションが両テーブルと配信順序インデックスを作成することを検証
func TestMigrations_InitialSchema(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000001_create_eventsub_tables.up.sql")
	if err != nil {
		t.Fatalf("failed to read initial migration: %v", err)
	}
	sql := string(data)

	for _, want := range []string{
		"CREATE TABLE eventsub_users",
		"CREATE TABLE eventsub_events",
		"scope_version",
		"reconciled_version",
		"idx_eventsub_events_user_created",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("initial migration should contain %q", want)
		}
	}
}

// 接続URLが不正な場合でもOpen自体は成功することを検証（sql.Openは遅延接続）
func TestOpen_DoesNotConnect(t *testing.T) {
	db, err := Open("postgres://invalid-host:5432/nonexistent")
	if err != nil {
		t.Fatalf("Open() がエラーを返した: %v", err)
	}
	defer db.Close()

	if db == nil {
		t.Fatal("expected non-nil db handle")
	}
}
