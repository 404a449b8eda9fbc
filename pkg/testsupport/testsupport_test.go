package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	content := []byte("test fixture content")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if got := LoadFixture(t, path); string(got) != string(content) {
		t.Errorf("expected %q, got %q", content, got)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	data, err := json.Marshal([]map[string]any{{"name": "Ann", "age": 30}})
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var rows []struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	LoadFixtureJSON(t, path, &rows)

	if len(rows) != 1 || rows[0].Name != "Ann" || rows[0].Age != 30 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestFixturePath(t *testing.T) {
	if got, want := FixturePath("users.json"), filepath.Join("testdata", "users.json"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNewSQLiteDB(t *testing.T) {
	db := NewSQLiteDB(t)

	var n int
	if err := db.NewRaw("SELECT 1").Scan(context.Background(), &n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
}

func TestNewRedis(t *testing.T) {
	srv, client := NewRedis(t)
	ctx := context.Background()

	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := srv.Get("k"); got != "v" {
		t.Errorf("expected v, got %q", got)
	}
}

func TestObservedLogger(t *testing.T) {
	log, logs := ObservedLogger(zapcore.WarnLevel)
	log.Info("dropped")
	log.Warn("kept")

	if logs.Len() != 1 || logs.All()[0].Message != "kept" {
		t.Errorf("unexpected entries %+v", logs.All())
	}
}
