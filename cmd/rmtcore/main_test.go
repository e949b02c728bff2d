package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"rmtcore/internal/logger"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logger.Level{
		"debug":   logger.DEBUG,
		"DEBUG":   logger.DEBUG,
		"warn":    logger.WARN,
		"warning": logger.WARN,
		"error":   logger.ERROR,
		"":        logger.INFO,
		"bogus":   logger.INFO,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	if code := run([]string{"bogus"}); code != 1 {
		t.Errorf("run([bogus]) = %d, want 1", code)
	}
}

func TestRunNoArgs(t *testing.T) {
	if code := run(nil); code != 1 {
		t.Errorf("run(nil) = %d, want 1", code)
	}
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"help"}); code != 0 {
		t.Errorf("run([help]) = %d, want 0", code)
	}
}

func TestLoadConfigRequiresFlag(t *testing.T) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if _, err := loadConfig(fs, nil); err == nil {
		t.Error("expected error when --config is missing")
	}
}

func TestGroupStateSubcommandReportsPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.yaml")
	body := `
source:
  - addr: 127.0.0.1:6379
target:
  addrs:
    - 127.0.0.1:7000
threads:
  count: 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if code := runGroupState([]string{"--config", path}); code != 0 {
		t.Errorf("runGroupState = %d, want 0", code)
	}
}
