// Package cache provides a content-addressed response cache for model
// calls. Entries live one JSON file per key under a cache directory, with
// a ristretto layer in front so repeated hits within a session skip the
// disk read.
//
// The cache is strictly best-effort: any read problem (missing file,
// corrupt JSON, expired entry) is reported as a miss, and write failures
// are logged and swallowed. A broken cache must never break a chat turn.
package cache

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// Config holds the cache settings.
type Config struct {
	// Dir is the directory holding entry files and stats.json.
	Dir string

	// Enabled turns the cache on. When false, Get always misses and Set
	// is a no-op, but stats are still tracked.
	Enabled bool

	// TTL is the entry lifetime. Zero means DefaultTTL; negative disables
	// expiry.
	TTL time.Duration
}

// BucketStats counts cache outcomes for one (provider, model) pair.
type BucketStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Stats is an aggregate snapshot of cache effectiveness. HitRate is a
// percentage, 0 when no lookups have been recorded. EntryCount is the
// number of entry files currently on disk.
type Stats struct {
	Total      int64                  `json:"total"`
	Hits       int64                  `json:"hits"`
	Misses     int64                  `json:"misses"`
	HitRate    float64                `json:"hit_rate"`
	EntryCount int                    `json:"entry_count"`
	Models     map[string]BucketStats `json:"models"`
}

type fileEntry struct {
	Response string  `json:"response"`
	Created  float64 `json:"created"`
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
}

// Cache is a disk-backed response cache. Safe for concurrent use.
type Cache struct {
	dir     string
	enabled bool
	ttl     time.Duration
	hot     *ristretto.Cache

	mu    sync.Mutex
	stats map[string]*BucketStats

	log zerolog.Logger
}

// New creates the cache directory if needed and loads persisted stats.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: init hot layer: %w", err)
	}

	c := &Cache{
		dir:     cfg.Dir,
		enabled: cfg.Enabled,
		ttl:     ttl,
		hot:     hot,
		stats:   make(map[string]*BucketStats),
		log:     logging.Component("cache"),
	}
	c.loadStats()
	return c, nil
}

// Key derives the content-addressed key for a model call. The image bytes
// contribute an md5 digest so the same prompt with a different frame gets
// a distinct key.
func Key(provider, model, prompt string, image []byte) string {
	base := provider + ":" + model + ":" + prompt
	if len(image) > 0 {
		sum := md5.Sum(image)
		base += ":" + hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached response. The second return is false on any miss,
// including expired or unreadable entries.
func (c *Cache) Get(provider, model, prompt string, image []byte) (string, bool) {
	if !c.enabled {
		c.record(provider, model, false)
		return "", false
	}
	key := Key(provider, model, prompt, image)

	if v, ok := c.hot.Get(key); ok {
		if resp, ok := v.(string); ok {
			c.record(provider, model, true)
			return resp, true
		}
	}

	entry, ok := c.readEntry(key)
	if !ok {
		c.record(provider, model, false)
		return "", false
	}
	if c.expired(entry.Created) {
		c.record(provider, model, false)
		// Drop the stale file so ClearExpired has less to do.
		os.Remove(c.entryPath(key))
		return "", false
	}

	c.hot.Set(key, entry.Response, int64(len(entry.Response)))
	c.record(provider, model, true)
	return entry.Response, true
}

// Set stores a response. Failures are logged and swallowed.
func (c *Cache) Set(provider, model, prompt string, image []byte, response string) {
	if !c.enabled || response == "" {
		return
	}
	key := Key(provider, model, prompt, image)

	entry := fileEntry{
		Response: response,
		Created:  float64(time.Now().UnixNano()) / float64(time.Second),
		Provider: provider,
		Model:    model,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Msg("encode cache entry failed")
		return
	}
	if err := writeFileAtomic(c.entryPath(key), data); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("write cache entry failed")
		return
	}
	c.hot.Set(key, response, int64(len(response)))
}

// Stats returns the aggregate counters plus the per-(provider, model)
// breakdown keyed "provider/model".
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	models := make(map[string]BucketStats, len(c.stats))
	var hits, misses int64
	for k, v := range c.stats {
		models[k] = *v
		hits += v.Hits
		misses += v.Misses
	}
	c.mu.Unlock()

	s := Stats{
		Total:      hits + misses,
		Hits:       hits,
		Misses:     misses,
		EntryCount: c.countEntries(),
		Models:     models,
	}
	if s.Total > 0 {
		s.HitRate = float64(hits) / float64(s.Total) * 100
	}
	return s
}

func (c *Cache) countEntries() int {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0
	}
	n := 0
	for _, path := range files {
		if filepath.Base(path) != statsFile {
			n++
		}
	}
	return n
}

// ClearExpired removes entry files past their TTL and reports how many
// were deleted. Unreadable files count as expired.
func (c *Cache) ClearExpired() (int, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("cache: list entries: %w", err)
	}

	removed := 0
	for _, path := range files {
		if filepath.Base(path) == statsFile {
			continue
		}
		entry, ok := readEntryFile(path)
		if ok && !c.expired(entry.Created) {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("remove expired entry failed")
			continue
		}
		removed++
	}
	return removed, nil
}

// Close flushes stats and releases the hot layer.
func (c *Cache) Close() error {
	c.hot.Close()
	return c.saveStats()
}

func (c *Cache) expired(created float64) bool {
	if c.ttl < 0 {
		return false
	}
	age := time.Since(time.Unix(0, int64(created*float64(time.Second))))
	return age > c.ttl
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) readEntry(key string) (fileEntry, bool) {
	return readEntryFile(c.entryPath(key))
}

func readEntryFile(path string) (fileEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileEntry{}, false
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fileEntry{}, false
	}
	if entry.Response == "" {
		return fileEntry{}, false
	}
	return entry, true
}

func (c *Cache) record(provider, model string, hit bool) {
	key := provider + "/" + model

	c.mu.Lock()
	bucket, ok := c.stats[key]
	if !ok {
		bucket = &BucketStats{}
		c.stats[key] = bucket
	}
	if hit {
		bucket.Hits++
	} else {
		bucket.Misses++
	}
	c.mu.Unlock()

	if err := c.saveStats(); err != nil {
		c.log.Warn().Err(err).Msg("persist cache stats failed")
	}
}

const statsFile = "stats.json"

func (c *Cache) loadStats() {
	data, err := os.ReadFile(filepath.Join(c.dir, statsFile))
	if err != nil {
		return
	}
	stats := make(map[string]*BucketStats)
	if err := json.Unmarshal(data, &stats); err != nil {
		c.log.Warn().Err(err).Msg("discarding corrupt cache stats")
		return
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cache) saveStats() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.stats, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(c.dir, statsFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
