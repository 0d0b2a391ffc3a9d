package cache

import (
	"context"
	"time"
)

// HitType indicates where a cached value was found.
type HitType string

// Hit types reported by Lookup.
const (
	HitMemory HitType = "memory"
	HitDisk   HitType = "disk"
	HitRedis  HitType = "redis"
	Miss      HitType = "miss"
)

// Store holds encoded values with a TTL. Backend failures are logged and reported as misses.
type Store interface {
	Lookup(ctx context.Context, key string) ([]byte, HitType)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
