package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
source:
  - addr: 127.0.0.1:6379
target:
  addrs:
    - 127.0.0.1:7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Kind != "SINGLE" {
		t.Errorf("Target.Kind = %q, want SINGLE", cfg.Target.Kind)
	}
	if cfg.Threads.Count != 4 {
		t.Errorf("Threads.Count = %d, want 4", cfg.Threads.Count)
	}
	if cfg.Threads.Pipeline != 256 {
		t.Errorf("Threads.Pipeline = %d, want 256", cfg.Threads.Pipeline)
	}
	if cfg.Consistency.SampleRate != 0.001 {
		t.Errorf("Consistency.SampleRate = %v, want 0.001", cfg.Consistency.SampleRate)
	}
}

func TestLoadRejectsMissingSource(t *testing.T) {
	path := writeTempConfig(t, `
target:
  addrs:
    - 127.0.0.1:7000
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load: expected error for missing source")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Load: got %T, want *ValidationError", err)
	}
	if len(verr.Errors) == 0 {
		t.Error("ValidationError.Errors is empty")
	}
}

func TestLoadRejectsUnknownTargetKind(t *testing.T) {
	path := writeTempConfig(t, `
source:
  - addr: 127.0.0.1:6379
target:
  kind: BOGUS
  addrs:
    - 127.0.0.1:7000
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load: expected error for unknown target.kind")
	}
}

func TestLoadRDBFileTarget(t *testing.T) {
	path := writeTempConfig(t, `
source:
  - addr: 127.0.0.1:6379
target:
  kind: rdbfile
  rdbPaths:
    - /tmp/shard-0.rdb
    - /tmp/shard-1.rdb
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Kind != "RDBFILE" {
		t.Errorf("Target.Kind = %q, want RDBFILE", cfg.Target.Kind)
	}
	if len(cfg.Target.RDBPaths) != 2 {
		t.Errorf("len(RDBPaths) = %d, want 2", len(cfg.Target.RDBPaths))
	}
}

func TestResolvePath(t *testing.T) {
	path := writeTempConfig(t, `
source:
  - addr: 127.0.0.1:6379
target:
  addrs:
    - 127.0.0.1:7000
stateDir: state
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "state")
	if got := cfg.ResolveStateDir(); got != want {
		t.Errorf("ResolveStateDir() = %q, want %q", got, want)
	}
	if got := cfg.ResolvePath("/abs/path"); got != filepath.Clean("/abs/path") {
		t.Errorf("ResolvePath(abs) = %q, want /abs/path", got)
	}
}
