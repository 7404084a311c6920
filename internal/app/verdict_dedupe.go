package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DuplicateGuard reports whether a webhook delivery was already seen recently.
type DuplicateGuard interface {
	SeenBefore(ctx context.Context, key string) bool
	Forget(ctx context.Context, key string)
}

// VerdictDeduper remembers delivery keys in Redis with SET NX and a TTL. When Redis is
// not configured or unreachable it falls back to an in-process map, which only
// protects a single replica.
type VerdictDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewVerdictDeduper(client redis.UniversalClient, prefix string, ttl time.Duration) *VerdictDeduper {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "kyc:verdict"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &VerdictDeduper{
		client: client,
		prefix: trimmedPrefix,
		ttl:    ttl,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (d *VerdictDeduper) SeenBefore(ctx context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}

	if d.client != nil {
		stored, err := d.client.SetNX(ctx, fmt.Sprintf("%s:%s", d.prefix, key), d.now().Unix(), d.ttl).Result()
		if err == nil {
			return !stored
		}
		log.Printf("level=warn component=dedupe msg=\"redis unavailable; using in-memory dedupe\" err=%v", err)
	}
	return d.seenInMemory(key)
}

// Forget releases a key so a redelivery is processed again. Callers use it when
// handling failed after the key was recorded.
func (d *VerdictDeduper) Forget(ctx context.Context, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if d.client != nil {
		if err := d.client.Del(ctx, fmt.Sprintf("%s:%s", d.prefix, key)).Err(); err != nil {
			log.Printf("level=warn component=dedupe msg=\"failed to release redis key\" err=%v", err)
		}
	}
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *VerdictDeduper) seenInMemory(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-d.ttl)
	for k, ts := range d.seen {
		if ts.Before(cutoff) {
			delete(d.seen, k)
		}
	}

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = now
	return false
}
