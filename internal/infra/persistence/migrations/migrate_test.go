package migrations

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveDirRejectsBlankPath(t *testing.T) {
	if _, err := resolveDir("   "); err == nil {
		t.Fatal("expected error for blank migrations path")
	}
}

func TestResolveDirRejectsMissingDirectory(t *testing.T) {
	if _, err := resolveDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestResolveDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001_x.up.sql")
	if err := os.WriteFile(path, []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := resolveDir(path); err == nil {
		t.Fatal("expected error when path is a file")
	}
}

func TestFileURLShape(t *testing.T) {
	url := fileURL("/var/lib/webhookhub/migrations")
	if !strings.HasPrefix(url, "file:///") {
		t.Fatalf("expected file:/// prefix, got %s", url)
	}
}

func TestRollbackRejectsNonPositiveSteps(t *testing.T) {
	err := Rollback(context.Background(), "postgres://localhost/x", t.TempDir(), 0, nil)
	if err == nil || !strings.Contains(err.Error(), "positive") {
		t.Fatalf("expected step validation error, got %v", err)
	}
}
