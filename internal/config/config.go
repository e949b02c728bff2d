// Package config loads and validates the YAML migration-plan file whose
// path cmd/rmtcore takes through its --config/-c flag. The CLI has no
// --source/--target flags; sources and the target are set only in this
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds migration configuration for one engine run.
type Config struct {
	Source       []SourceConfig     `yaml:"source"`
	Target       TargetConfig       `yaml:"target"`
	Threads      ThreadsConfig      `yaml:"threads"`
	Consistency  ConsistencyConfig  `yaml:"consistency"`
	ControlPlane ControlPlaneConfig `yaml:"controlPlane"`
	StateDir     string             `yaml:"stateDir"`
	LogDir       string             `yaml:"logDir"`
	LogLevel     string             `yaml:"logLevel"`

	path string
}

// ControlPlaneConfig configures the RESP INFO responder and HTTP /metrics
// endpoint (spec.md §6's "proxy"). Either address left empty disables that
// listener.
type ControlPlaneConfig struct {
	RespAddr string `yaml:"respAddr"`
	HTTPAddr string `yaml:"httpAddr"`
}

// SourceConfig describes one source Redis/Dragonfly instance the reader
// pool attaches to as a pseudo-replica.
type SourceConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
}

// TargetConfig describes the target topology group (SINGLE, CLUSTER, or
// RDBFILE per spec.md §4.F).
type TargetConfig struct {
	Kind     string   `yaml:"kind"` // SINGLE | CLUSTER | RDBFILE
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TLS      bool     `yaml:"tls"`
	RDBPaths []string `yaml:"rdbPaths"` // one sink file per RDBFILE writer
}

// ThreadsConfig holds the thread count, noreply, source-safe and rate-limit
// settings (spec.md §6). They are set only in the config file; the CLI has
// no --thread, --noreply or --source-safe flags.
type ThreadsConfig struct {
	Count      int  `yaml:"count"`
	Pipeline   int  `yaml:"pipeline"`
	NoReply    bool `yaml:"noreply"`
	SourceSafe bool `yaml:"sourceSafe"`
	RateLimit  int  `yaml:"rateLimit"` // target commands/sec, 0 = unlimited
}

// ConsistencyConfig tunes the compare subcommand's sampled key check.
type ConsistencyConfig struct {
	SampleRate float64 `yaml:"sampleRate"`
	Timeout    string  `yaml:"timeout"`
}

// ValidationError collects every configuration issue found, rather than
// failing on the first one.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	for _, err := range e.Errors {
		b.WriteString("\n - ")
		b.WriteString(err)
	}
	return b.String()
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}
	cfg.path = absPath
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with the engine's defaults.
func (c *Config) ApplyDefaults() {
	if c.Target.Kind == "" {
		c.Target.Kind = "SINGLE"
	}
	c.Target.Kind = strings.ToUpper(c.Target.Kind)
	if c.Threads.Count <= 0 {
		c.Threads.Count = 4
	}
	if c.Threads.Pipeline <= 0 {
		c.Threads.Pipeline = 256
	}
	if c.Consistency.SampleRate <= 0 {
		c.Consistency.SampleRate = 0.001
	}
	if c.Consistency.Timeout == "" {
		c.Consistency.Timeout = "5s"
	}
	if c.StateDir == "" {
		c.StateDir = "state"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate ensures the config is usable, accumulating every problem found.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Source) == 0 {
		errs = append(errs, "source: at least one instance required")
	}
	for i, s := range c.Source {
		if s.Addr == "" {
			errs = append(errs, fmt.Sprintf("source[%d].addr required", i))
		}
	}

	switch c.Target.Kind {
	case "SINGLE", "CLUSTER":
		if len(c.Target.Addrs) == 0 {
			errs = append(errs, "target.addrs required for "+c.Target.Kind)
		}
	case "RDBFILE":
		if len(c.Target.RDBPaths) == 0 {
			errs = append(errs, "target.rdbPaths required for RDBFILE")
		}
	default:
		errs = append(errs, "target.kind must be SINGLE, CLUSTER, or RDBFILE, got "+c.Target.Kind)
	}

	if c.Threads.Count <= 0 {
		errs = append(errs, "threads.count must be > 0")
	}
	if c.Threads.Pipeline <= 0 {
		errs = append(errs, "threads.pipeline must be > 0")
	}
	if c.Threads.RateLimit < 0 {
		errs = append(errs, "threads.rateLimit must be >= 0")
	}
	if c.Consistency.SampleRate < 0 || c.Consistency.SampleRate > 1 {
		errs = append(errs, "consistency.sampleRate must be within 0..1")
	}
	if c.Consistency.Timeout != "" {
		if _, err := time.ParseDuration(c.Consistency.Timeout); err != nil {
			errs = append(errs, fmt.Sprintf("consistency.timeout invalid: %v", err))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Path: c.path, Errors: errs}
	}
	return nil
}

// ResolveStateDir returns the config's state directory, resolved relative
// to the config file's location if not already absolute.
func (c *Config) ResolveStateDir() string {
	return c.ResolvePath(c.StateDir)
}

// ResolvePath returns an absolute path based on the config file's location.
func (c *Config) ResolvePath(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(c.path), path))
}

// Summary returns a one-line overview suitable for a startup log line.
func (c *Config) Summary() string {
	return fmt.Sprintf("sources=%d target=%s(%s) threads=%d pipeline=%d noreply=%t sourceSafe=%t",
		len(c.Source), c.Target.Kind, strings.Join(c.Target.Addrs, ","),
		c.Threads.Count, c.Threads.Pipeline, c.Threads.NoReply, c.Threads.SourceSafe)
}
