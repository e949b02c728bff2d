// Package compare implements the `compare` subcommand: a sampled
// consistency check between a source and a target group, grounded on the
// teacher's internal/comparator (full-scan key-existence diff) and
// internal/checker (outline/length/full validation modes), cut down to the
// sampling, outline-style comparison spec.md §4.G treats as "a separate
// feature" of the core.
package compare

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures one comparison run.
type Config struct {
	SourceAddr   string
	SourcePass   string
	TargetKind   string // SINGLE | CLUSTER
	TargetAddrs  []string
	TargetPass   string
	SampleRate   float64 // fraction of scanned source keys to check, (0,1]
	Timeout      time.Duration
}

// Mismatch records one key whose source and target states disagree.
type Mismatch struct {
	Key    string
	Reason string
}

// Result summarizes a comparison run.
type Result struct {
	KeysScanned int64
	KeysSampled int64
	Mismatches  []Mismatch
}

// Run scans the source keyspace, samples a subset of keys per cfg.SampleRate,
// and for each sampled key compares TYPE and an outline of the value
// (length for strings, member/field count otherwise) against the target.
// TTLs are not compared. It does not compare full values — that tradeoff is what keeps a
// sampled run cheap enough to run continuously during a live migration.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 0.001
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	src := redis.NewClient(&redis.Options{Addr: cfg.SourceAddr, Password: cfg.SourcePass, ReadTimeout: cfg.Timeout})
	defer src.Close()

	tgt, err := newTargetClient(cfg)
	if err != nil {
		return nil, err
	}
	defer tgt.Close()

	if err := src.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("compare: ping source %s: %w", cfg.SourceAddr, err)
	}
	if err := tgt.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("compare: ping target: %w", err)
	}

	res := &Result{}
	iter := src.Scan(ctx, 0, "", 1000).Iterator()
	for iter.Next(ctx) {
		res.KeysScanned++
		if rand.Float64() > cfg.SampleRate {
			continue
		}
		res.KeysSampled++
		key := iter.Val()
		if reason, ok := compareOne(ctx, src, tgt, key); !ok {
			res.Mismatches = append(res.Mismatches, Mismatch{Key: key, Reason: reason})
		}
	}
	if err := iter.Err(); err != nil {
		return res, fmt.Errorf("compare: scan source: %w", err)
	}
	return res, nil
}

// redisClient is the subset of *redis.Client / *redis.ClusterClient compare
// needs, letting the single-node and cluster cases share one code path.
type redisClient interface {
	Type(ctx context.Context, key string) *redis.StatusCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	StrLen(ctx context.Context, key string) *redis.IntCmd
	HLen(ctx context.Context, key string) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

func newTargetClient(cfg Config) (redisClient, error) {
	switch cfg.TargetKind {
	case "", "SINGLE":
		if len(cfg.TargetAddrs) == 0 {
			return nil, fmt.Errorf("compare: target addr required")
		}
		return redis.NewClient(&redis.Options{Addr: cfg.TargetAddrs[0], Password: cfg.TargetPass, ReadTimeout: cfg.Timeout}), nil
	case "CLUSTER":
		if len(cfg.TargetAddrs) == 0 {
			return nil, fmt.Errorf("compare: target addrs required for CLUSTER")
		}
		return redis.NewClusterClient(&redis.ClusterOptions{Addrs: cfg.TargetAddrs, Password: cfg.TargetPass, ReadTimeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("compare: unsupported target kind %q (RDBFILE has no live target to compare against)", cfg.TargetKind)
	}
}

// compareOne reports whether key's outline (type and size) agrees between
// src and tgt. TTLs are not compared.
func compareOne(ctx context.Context, src, tgt redisClient, key string) (reason string, ok bool) {
	srcType, err := src.Type(ctx, key).Result()
	if err != nil {
		return fmt.Sprintf("source TYPE error: %v", err), false
	}
	tgtType, err := tgt.Type(ctx, key).Result()
	if err != nil {
		return fmt.Sprintf("missing on target: %v", err), false
	}
	if srcType != tgtType {
		return fmt.Sprintf("type mismatch: source=%s target=%s", srcType, tgtType), false
	}

	srcSize, err := outlineSize(ctx, src, key, srcType)
	if err != nil {
		return fmt.Sprintf("source size error: %v", err), false
	}
	tgtSize, err := outlineSize(ctx, tgt, key, tgtType)
	if err != nil {
		return fmt.Sprintf("target size error: %v", err), false
	}
	if srcSize != tgtSize {
		return fmt.Sprintf("size mismatch: source=%d target=%d", srcSize, tgtSize), false
	}
	return "", true
}

func outlineSize(ctx context.Context, c redisClient, key, typ string) (int64, error) {
	switch typ {
	case "string":
		return c.StrLen(ctx, key).Result()
	case "hash":
		return c.HLen(ctx, key).Result()
	case "list":
		return c.LLen(ctx, key).Result()
	case "set":
		return c.SCard(ctx, key).Result()
	case "zset":
		return c.ZCard(ctx, key).Result()
	default:
		return 0, nil
	}
}
