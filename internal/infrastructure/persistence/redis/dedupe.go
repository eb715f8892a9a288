// Package redis implements the submission dedupe guard. Form providers
// retry webhook deliveries on timeouts, and the decision engine is not
// idempotent across identical re-deliveries (day coercion warnings, Slack
// noise), so duplicates are dropped at the edge with a short-lived marker.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// MarkerTTL is how long a processed submission stays remembered.
	// Form providers retry within minutes, so an hour is plenty.
	MarkerTTL time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MarkerTTL:    time.Hour,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEDUPE GUARD
// ══════════════════════════════════════════════════════════════════════════════

// DedupeGuard drops repeated webhook deliveries of the same form submission.
type DedupeGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDedupeGuard creates the guard and verifies connectivity.
func NewDedupeGuard(ctx context.Context, cfg Config) (*DedupeGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to ping: %w", err)
	}

	ttl := cfg.MarkerTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &DedupeGuard{client: client, ttl: ttl}, nil
}

// FirstDelivery marks the submission as seen and reports whether this
// delivery was the first one. SETNX makes the check-and-mark atomic, so
// concurrent duplicate deliveries cannot both pass.
func (g *DedupeGuard) FirstDelivery(ctx context.Context, payload map[string][]string) (bool, error) {
	key := "extensions:submission:" + fingerprint(payload)

	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to mark submission: %w", err)
	}
	return ok, nil
}

// Close releases the connection.
func (g *DedupeGuard) Close() error {
	return g.client.Close()
}

// fingerprint hashes the payload with keys in deterministic order, so two
// deliveries of the same submission produce the same key regardless of map
// iteration order.
func fingerprint(payload map[string][]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(strings.Join(payload[k], "\x00")))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
