package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// cacheRetentionPeriod is how long cache files are kept before the sweep removes them.
	cacheRetentionPeriod = 30 * 24 * time.Hour
	cacheDirPerms        = 0o700
	cacheFilePerms       = 0o600
)

// TTLs for the data the fetch layer caches.
const (
	// TTLFiles applies to a file list keyed by head SHA, which cannot change.
	TTLFiles = 28 * 24 * time.Hour

	// TTLOpenPullRequests applies to the open PR list used by the interactive picker.
	TTLOpenPullRequests = 2 * time.Minute
)

type diskEntry struct {
	Expiration time.Time       `json:"expiration"`
	CachedAt   time.Time       `json:"cached_at"`
	Value      json.RawMessage `json:"value"`
}

// DiskCache is a two-tier Store: memory in front of one JSON file per key.
type DiskCache struct {
	mem      *Cache
	cacheDir string
}

// NewDiskCache creates a disk-backed cache rooted at cacheDir.
// An empty cacheDir yields a memory-only cache.
func NewDiskCache(cacheDir string) (*DiskCache, error) {
	dc := &DiskCache{mem: New()}
	if cacheDir == "" {
		return dc, nil
	}

	cleanPath := filepath.Clean(cacheDir)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("cache directory must be absolute path")
	}
	if err := os.MkdirAll(cleanPath, cacheDirPerms); err != nil {
		slog.Warn("Failed to create cache directory, falling back to memory-only", "component", "cache", "error", err, "path", cleanPath)
		return dc, nil
	}
	dc.cacheDir = cleanPath
	go dc.cleanOldCaches()
	return dc, nil
}

// Lookup checks memory first, then disk. Disk hits are promoted to memory.
func (c *DiskCache) Lookup(ctx context.Context, key string) ([]byte, HitType) {
	if v, hit := c.mem.Lookup(ctx, key); hit != Miss {
		return v, hit
	}
	if c.cacheDir == "" {
		return nil, Miss
	}

	var e diskEntry
	if !c.loadFromDisk(key, &e) {
		return nil, Miss
	}
	ttl := time.Until(e.Expiration)
	if ttl <= 0 {
		slog.Debug("Disk cache entry expired", "component", "cache", "key", key, "expired_at", e.Expiration)
		c.removeFromDisk(key)
		return nil, Miss
	}

	c.mem.Set(ctx, key, e.Value, ttl)
	return e.Value, HitDisk
}

// Set writes to memory and, when enabled, to disk.
func (c *DiskCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mem.Set(ctx, key, value, ttl)
	if c.cacheDir == "" || ttl <= 0 {
		return
	}
	if !json.Valid(value) {
		slog.Debug("Skipping disk write for non-JSON value", "component", "cache", "key", key)
		return
	}

	now := time.Now()
	e := diskEntry{Value: value, Expiration: now.Add(ttl), CachedAt: now}
	if err := c.saveToDisk(key, e); err != nil {
		slog.Warn("Failed to save to disk cache", "component", "cache", "key", key, "error", err)
	}
}

// Close stops background sweeps of the memory tier.
func (c *DiskCache) Close() {
	c.mem.Close()
}

func (*DiskCache) fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:]) + ".json"
}

func (c *DiskCache) loadFromDisk(key string, v any) bool {
	path := filepath.Join(c.cacheDir, c.fileName(key))

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Failed to open disk cache file", "component", "cache", "error", err, "path", path)
		}
		return false
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Debug("Failed to close disk cache file", "component", "cache", "error", err, "path", path)
		}
	}()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		slog.Debug("Failed to decode disk cache file", "component", "cache", "error", err, "path", path)
		return false
	}
	return true
}

// saveToDisk writes through a temp file and renames it into place.
func (c *DiskCache) saveToDisk(key string, v any) error {
	path := filepath.Join(c.cacheDir, c.fileName(key))
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cacheFilePerms)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}

	if err := json.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encoding cache data: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (c *DiskCache) removeFromDisk(key string) {
	path := filepath.Join(c.cacheDir, c.fileName(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove disk cache file", "component", "cache", "error", err, "path", path)
	}
}

func (c *DiskCache) cleanOldCaches() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-c.mem.done:
			return
		case <-ticker.C:
			c.removeOlderThan(time.Now().Add(-cacheRetentionPeriod))
		}
	}
}

// removeOlderThan deletes cache files last written before cutoff and returns how many it removed.
func (c *DiskCache) removeOlderThan(cutoff time.Time) int {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		slog.Error("Failed to read cache directory", "component", "cache", "error", err)
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(c.cacheDir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Debug("Failed to remove old cache file", "component", "cache", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Cleaned old cache files", "component", "cache", "removed", removed)
	}
	return removed
}
