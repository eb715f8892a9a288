package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := fingerprint(map[string][]string{
		"Email Address":      {"alice@berkeley.edu"},
		"Which assignments?": {"Homework 1"},
	})
	b := fingerprint(map[string][]string{
		"Which assignments?": {"Homework 1"},
		"Email Address":      {"alice@berkeley.edu"},
	})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded sha256
}

func TestFingerprintDistinguishesPayloads(t *testing.T) {
	a := fingerprint(map[string][]string{"Email Address": {"alice@berkeley.edu"}})
	b := fingerprint(map[string][]string{"Email Address": {"bob@berkeley.edu"}})
	assert.NotEqual(t, a, b)

	// Value boundaries matter: {"ab"} is not {"a","b"}.
	c := fingerprint(map[string][]string{"k": {"ab"}})
	d := fingerprint(map[string][]string{"k": {"a", "b"}})
	assert.NotEqual(t, c, d)
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host = "redis.internal"
	cfg.Port = 6380
	assert.Equal(t, "redis.internal:6380", cfg.Addr())
}
