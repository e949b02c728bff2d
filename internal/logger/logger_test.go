package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, INFO, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Infof("hello %d", 1)
	l.Warnf("careful %s", "now")

	matches, err := filepath.Glob(filepath.Join(dir, "test.log.*"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) == 0 {
		t.Error("expected at least one rotated log file to exist")
	}
}

func TestNewCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	if _, err := os.Stat(dir); err == nil {
		t.Fatal("dir should not exist yet")
	}
	if _, err := New(dir, DEBUG, "x"); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log dir was not created: %v", err)
	}
}
