package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"rmtcore/internal/assign"
	"rmtcore/internal/config"
)

func TestValidatePlanAcceptsFullCoverage(t *testing.T) {
	p := assign.Plan{ReaderCount: 2, WriterCount: 2, ReaderOf: []int{0, 1, 0}, WriterOf: []int{0, 0, 1}}
	if err := validatePlan(p, 3, false); err != nil {
		t.Errorf("validatePlan: %v", err)
	}
}

func TestValidatePlanRejectsRDBFileWithReaders(t *testing.T) {
	p := assign.Plan{ReaderCount: 1, WriterCount: 2, ReaderOf: []int{0}, WriterOf: []int{0, 1}}
	if err := validatePlan(p, 2, true); err == nil {
		t.Error("expected error: RDBFILE target must have 0 readers")
	}
}

func TestValidatePlanRejectsPartialCoverage(t *testing.T) {
	p := assign.Plan{ReaderCount: 2, WriterCount: 2, ReaderOf: []int{0, 1}, WriterOf: []int{0, 1}}
	if err := validatePlan(p, 3, false); err == nil {
		t.Error("expected error: assignment does not cover all 3 sources")
	}
}

func TestGroupStateComputesPlanWithoutConnecting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.yaml")
	body := `
source:
  - addr: 127.0.0.1:6379
  - addr: 127.0.0.1:6380
target:
  addrs:
    - 127.0.0.1:7000
threads:
  count: 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan, err := GroupState(cfg)
	if err != nil {
		t.Fatalf("GroupState: %v", err)
	}
	// SplitThreads(10, N=2): R=max(1,floor(10*0.2))=2, W=10-2=8 clamped to N=2.
	if plan.ReaderCount != 2 || plan.WriterCount != 2 {
		t.Errorf("plan = %+v, want ReaderCount=WriterCount=2 (R/W clamped to N=2 sources)", plan)
	}
}

func TestGroupStateAppliesTwentyPercentReaderSplit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.yaml")
	body := `
source:
  - addr: 127.0.0.1:6379
  - addr: 127.0.0.1:6380
  - addr: 127.0.0.1:6381
  - addr: 127.0.0.1:6382
  - addr: 127.0.0.1:6383
  - addr: 127.0.0.1:6384
  - addr: 127.0.0.1:6385
  - addr: 127.0.0.1:6386
  - addr: 127.0.0.1:6387
  - addr: 127.0.0.1:6388
target:
  addrs:
    - 127.0.0.1:7000
threads:
  count: 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan, err := GroupState(cfg)
	if err != nil {
		t.Fatalf("GroupState: %v", err)
	}
	// SplitThreads(10, N=10): R=max(1,floor(10*0.2))=2, W=10-2=8.
	if plan.ReaderCount != 2 {
		t.Errorf("ReaderCount = %d, want 2 (20%% of 10 threads)", plan.ReaderCount)
	}
	if plan.WriterCount != 8 {
		t.Errorf("WriterCount = %d, want 8", plan.WriterCount)
	}
}

func TestGroupStateRDBFileForcesZeroReaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.yaml")
	body := `
source:
  - addr: 127.0.0.1:6379
target:
  kind: rdbfile
  rdbPaths:
    - /tmp/a.rdb
threads:
  count: 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	plan, err := GroupState(cfg)
	if err != nil {
		t.Fatalf("GroupState: %v", err)
	}
	if plan.ReaderCount != 0 {
		t.Errorf("ReaderCount = %d, want 0", plan.ReaderCount)
	}
	if plan.WriterCount != 1 {
		t.Errorf("WriterCount = %d, want 1 (min(N=1,T=1 rdb paths))", plan.WriterCount)
	}
}
