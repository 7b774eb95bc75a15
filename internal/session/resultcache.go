package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/i72421/pm-graph/internal/models"
)

// shortID safely truncates an id for logging.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ResultCache persists completed timelines keyed by the uploaded file pair,
// so re-analyzing the same logs skips the parse entirely. Entries are
// msgpack files under one directory, scanned on startup.
type ResultCache struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]string // key -> path
}

// NewResultCache creates the cache directory and indexes existing entries.
func NewResultCache(dir string) *ResultCache {
	os.MkdirAll(dir, 0755)

	c := &ResultCache{
		dir:   dir,
		cache: make(map[string]string),
	}
	c.scanExisting()
	return c
}

func (c *ResultCache) scanExisting() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		logrus.Warnf("could not scan result cache: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "run_") || !strings.HasSuffix(name, ".msgpack") {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, "run_"), ".msgpack")
		c.cache[key] = filepath.Join(c.dir, name)
	}

	logrus.Debugf("result cache holds %d entries", len(c.cache))
}

// The key joins the file pair with a separator that cannot occur in the
// uuid-based file ids.
func cacheKey(dmesgFileID, ftraceFileID string) string {
	if ftraceFileID == "" {
		return dmesgFileID
	}
	return dmesgFileID + "__" + ftraceFileID
}

func (c *ResultCache) entryPath(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("run_%s.msgpack", key))
}

// Load returns the cached timeline for a file pair, if present and readable.
func (c *ResultCache) Load(dmesgFileID, ftraceFileID string) (*models.Data, bool) {
	key := cacheKey(dmesgFileID, ftraceFileID)

	c.mu.RLock()
	path, ok := c.cache[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		c.drop(key, path)
		return nil, false
	}

	data := &models.Data{}
	if err := msgpack.Unmarshal(raw, data); err != nil {
		logrus.Warnf("corrupt result cache entry %s: %v", shortID(key), err)
		c.drop(key, path)
		return nil, false
	}
	data.Reindex()

	return data, true
}

// Store writes a completed timeline into the cache. The entry is written to
// a temp file and renamed so readers never see a partial write.
func (c *ResultCache) Store(dmesgFileID, ftraceFileID string, data *models.Data) error {
	key := cacheKey(dmesgFileID, ftraceFileID)
	path := c.entryPath(key)

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish result: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = path
	c.mu.Unlock()

	return nil
}

func (c *ResultCache) drop(key, path string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
	os.Remove(path)
}

// DeleteForFile removes every cached entry involving the given file id,
// for when the underlying upload is deleted.
func (c *ResultCache) DeleteForFile(fileID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, path := range c.cache {
		for _, part := range strings.Split(key, "__") {
			if part == fileID {
				os.Remove(path)
				delete(c.cache, key)
				removed++
				break
			}
		}
	}
	return removed
}

// CleanupOrphaned removes entries whose uploads no longer exist. rawFileIDs
// is the set of file ids still present in storage.
func (c *ResultCache) CleanupOrphaned(rawFileIDs []string) int {
	valid := make(map[string]bool, len(rawFileIDs))
	for _, id := range rawFileIDs {
		valid[id] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, path := range c.cache {
		keep := true
		for _, part := range strings.Split(key, "__") {
			if !valid[part] {
				keep = false
				break
			}
		}
		if !keep {
			os.Remove(path)
			delete(c.cache, key)
			removed++
		}
	}
	return removed
}

// Stats reports entry count and total size for the status endpoint.
func (c *ResultCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalSize int64
	for _, path := range c.cache {
		if info, err := os.Stat(path); err == nil {
			totalSize += info.Size()
		}
	}

	return map[string]interface{}{
		"cachedResults": len(c.cache),
		"totalSize":     totalSize,
		"directory":     c.dir,
	}
}
