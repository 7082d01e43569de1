// Package storage implements the content-addressable storage engine: the
// blob store, the metadata index, the alias index, deduplication,
// eviction, and debounced crash-safe persistence, mirroring the shape of
// Trickster's memory/filesystem cache managers adapted to a single
// long-lived content-addressed store rather than a pluggable Cache
// interface per object.
package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/storage/entrytype"
	"github.com/edgeproxy/edgeproxy/internal/storage/indexstore"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
)

// CacheEntry is re-exported from entrytype so callers outside this package
// tree can refer to storage.CacheEntry without importing the leaf package
// directly.
type CacheEntry = entrytype.CacheEntry

// Engine owns the main index, alias index, dedup marker set, and blob
// store, and serializes every mutating operation behind a single mutex per
// spec §5 ("protecting the main index, alias index, hot-blob map, and
// dedup set with a single mutex held across each operation").
type Engine struct {
	mu sync.Mutex

	index   map[string]*entrytype.CacheEntry
	aliases map[string]string
	dedup   map[string]bool

	blobs *blobStore
	disk  indexstore.Backend

	maxSize  int64
	bodyTTL  time.Duration
	staleTTL time.Duration
	debounce time.Duration

	dirty      bool
	flushTimer *time.Timer

	stats *Stats

	logger *log.Logger
}

// New constructs an Engine from storage configuration. It does not touch
// disk; call Init to load the index and run startup orphan cleanup.
func New(cfg *config.StorageConfig, logger *log.Logger) (*Engine, error) {
	backend, err := indexstore.New(cfg.IndexBackend, indexstore.Config{
		CacheDir:        cfg.CacheDir,
		BadgerDirectory: cfg.Badger.Directory,
		BBoltFilename:   cfg.BBolt.Filename,
		BBoltBucket:     cfg.BBolt.Bucket,
		RedisEndpoint:   cfg.Redis.Endpoint,
		RedisPassword:   cfg.Redis.Password,
		RedisDB:         cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: constructing index backend %q: %w", cfg.IndexBackend, err)
	}

	return &Engine{
		index:    make(map[string]*entrytype.CacheEntry),
		aliases:  make(map[string]string),
		dedup:    make(map[string]bool),
		blobs:    newBlobStore(cfg.CacheDir, cfg.Compression),
		disk:     backend,
		maxSize:  cfg.MaxSizeBytes,
		bodyTTL:  cfg.BodyTTL,
		staleTTL: cfg.StaleTTL,
		debounce: cfg.Debounce,
		stats:    newStats(),
		logger:   logger,
	}, nil
}

// Init loads the persisted index and alias index (spec §4.3 init), then
// performs startup orphan cleanup: any entry whose blob is missing from
// disk and the hot tier is dropped before serving traffic (spec §3
// invariant 1, §8 property 4).
func (e *Engine) Init() error {
	if err := e.blobs.ensureDirs(); err != nil {
		return fmt.Errorf("storage: creating blob directory: %w", err)
	}

	index, err := e.disk.LoadIndex()
	if err != nil {
		e.logger.Warn("failed to load index, starting fresh", log.Pairs{"error": err.Error()})
		index = make(map[string]*entrytype.CacheEntry)
	}
	aliases, err := e.disk.LoadAliasIndex()
	if err != nil {
		e.logger.Warn("failed to load alias index, starting fresh", log.Pairs{"error": err.Error()})
		aliases = make(map[string]string)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	orphans := 0
	for key, entry := range index {
		if e.blobs.hasHot(entry.BlobHash) || e.blobs.existsOnDisk(entry.BlobHash) {
			e.index[key] = entry
			continue
		}
		orphans++
	}
	if orphans > 0 {
		e.logger.Info("dropped orphaned metadata entries at startup", log.Pairs{"count": orphans})
	}

	for alias, key := range aliases {
		if _, ok := e.index[key]; ok {
			e.aliases[alias] = key
		}
	}

	var total int64
	for _, entry := range e.index {
		total += entry.Size
	}
	e.stats.setBodyBytes(total)

	return nil
}

func now() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// PeekMeta returns the entry for key unconditionally, or nil. It never
// deletes stale entries — the revalidation path relies on this (spec
// §4.3).
func (e *Engine) PeekMeta(key string) *entrytype.CacheEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index[key].Clone()
}

// PeekMetaAllowStale returns the entry iff now-storedAt < staleTTL, else
// nil.
func (e *Engine) PeekMetaAllowStale(key string) *entrytype.CacheEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.index[key]
	if !ok {
		return nil
	}
	if now()-entry.StoredAt >= e.staleTTL.Milliseconds() {
		return nil
	}
	return entry.Clone()
}

// PeekAlias resolves alias -> canonical key -> PeekMetaAllowStale.
func (e *Engine) PeekAlias(alias string) (*entrytype.CacheEntry, string) {
	e.mu.Lock()
	key, ok := e.aliases[alias]
	e.mu.Unlock()
	if !ok {
		return nil, ""
	}
	return e.PeekMetaAllowStale(key), key
}

// IsFresh reports whether meta is within the body TTL (spec §3 invariant 5).
func (e *Engine) IsFresh(meta *entrytype.CacheEntry) bool {
	if meta == nil {
		return false
	}
	return now()-meta.StoredAt < e.bodyTTL.Milliseconds()
}

// GetBlob returns the body for hash, falling back to disk on a hot-tier
// miss (spec §4.3 get_blob).
func (e *Engine) GetBlob(hash string) ([]byte, bool) {
	return e.blobs.get(hash)
}

// RefreshTTL sets stored_at = now for key and marks the index dirty.
func (e *Engine) RefreshTTL(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.index[key]
	if !ok {
		return
	}
	entry.StoredAt = now()
	e.markDirtyLocked()
}

// Put writes body under key with the asset header whitelist, sets an
// optional alias, marks the index dirty, schedules a debounced flush, and
// runs the eviction check (spec §4.3 put).
func (e *Engine) Put(key, url string, body []byte, responseHeaders map[string][]string, resourceType, origin, aliasKey string) error {
	return e.put(key, url, body, responseHeaders, resourceType, origin, aliasKey, entrytype.AssetHeaderWhitelist, true)
}

// PutDocument is Put with resourceType/origin hard-coded to "document",
// the document header whitelist, and no dedup-marker side effect (spec
// §4.3 put_document).
func (e *Engine) PutDocument(key, url string, body []byte, responseHeaders map[string][]string) error {
	return e.put(key, url, body, responseHeaders, "document", "document", "", entrytype.DocumentHeaderWhitelist, false)
}

func (e *Engine) put(key, url string, body []byte, responseHeaders map[string][]string, resourceType, origin, aliasKey string, whitelist map[string]bool, trackDedup bool) error {
	hash := hashBody(body)

	e.mu.Lock()
	dedup, err := e.blobs.put(hash, body)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("storage: writing blob %s: %w", hash, err)
	}

	filtered := entrytype.FilterHeaders(responseHeaders, whitelist)
	entry := &entrytype.CacheEntry{
		URL:          url,
		BlobHash:     hash,
		StoredAt:     now(),
		Headers:      filtered,
		ETag:         filtered["etag"],
		LastModified: filtered["last-modified"],
		Vary:         filtered["vary"],
		ResourceType: resourceType,
		Origin:       origin,
		Size:         int64(len(body)),
	}

	prev, hadPrev := e.index[key]
	e.index[key] = entry
	if trackDedup && dedup {
		e.dedup[key] = true
		e.stats.recordDedup()
	}
	if aliasKey != "" {
		e.aliases[aliasKey] = key
	}
	e.markDirtyLocked()
	e.mu.Unlock()

	delta := entry.Size
	if hadPrev {
		delta -= prev.Size
	}
	e.stats.addBodyBytes(delta)

	e.evictIfNeeded()
	return nil
}

// evictIfNeeded implements spec §4.3 eviction: triggered when the sum of
// entry sizes exceeds maxSize; pops entries oldest-stored-first until the
// sum is at most 0.9*maxSize, unlinking blobs no longer referenced.
func (e *Engine) evictIfNeeded() {
	e.mu.Lock()

	var total int64
	for _, entry := range e.index {
		total += entry.Size
	}
	if total <= e.maxSize {
		e.mu.Unlock()
		return
	}

	type keyed struct {
		key   string
		entry *entrytype.CacheEntry
	}
	all := make([]keyed, 0, len(e.index))
	for k, v := range e.index {
		all = append(all, keyed{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].entry.StoredAt < all[j].entry.StoredAt })

	target := int64(float64(e.maxSize) * 0.9)
	evicted := make([]keyed, 0)
	for _, kv := range all {
		if total <= target {
			break
		}
		delete(e.index, kv.key)
		delete(e.dedup, kv.key)
		total -= kv.entry.Size
		evicted = append(evicted, kv)
	}

	stillReferenced := make(map[string]bool, len(e.index))
	for _, entry := range e.index {
		stillReferenced[entry.BlobHash] = true
	}
	for alias, key := range e.aliases {
		if _, ok := e.index[key]; !ok {
			delete(e.aliases, alias)
		}
	}

	e.markDirtyLocked()
	newTotal := total

	for _, kv := range evicted {
		if stillReferenced[kv.entry.BlobHash] {
			continue
		}
		if err := e.blobs.remove(kv.entry.BlobHash); err != nil {
			e.logger.Warn("eviction unlink failed, orphan left for next startup", log.Pairs{"hash": kv.entry.BlobHash, "error": err.Error()})
		}
	}
	e.mu.Unlock()
	e.stats.recordEviction(len(evicted))
	e.stats.setBodyBytes(newTotal)

	e.flushNow()
}

// markDirtyLocked marks the index dirty and schedules a debounced flush.
// Caller must hold e.mu.
func (e *Engine) markDirtyLocked() {
	e.dirty = true
	if e.flushTimer != nil {
		return
	}
	e.flushTimer = time.AfterFunc(e.debounce, func() {
		e.flushNow()
	})
}

// Flush cancels any pending debounce timer and, if dirty, writes both
// index files, clearing the dirty flag (spec §4.3 flush). Safe to call at
// shutdown.
func (e *Engine) Flush() error {
	return e.flushNow()
}

func (e *Engine) flushNow() error {
	e.mu.Lock()
	if e.flushTimer != nil {
		e.flushTimer.Stop()
		e.flushTimer = nil
	}
	if !e.dirty {
		e.mu.Unlock()
		return nil
	}
	indexCopy := make(map[string]*entrytype.CacheEntry, len(e.index))
	for k, v := range e.index {
		indexCopy[k] = v.Clone()
	}
	aliasCopy := make(map[string]string, len(e.aliases))
	for k, v := range e.aliases {
		aliasCopy[k] = v
	}
	e.dirty = false
	e.mu.Unlock()

	if err := e.disk.SaveIndex(indexCopy); err != nil {
		e.logger.Error("failed to persist index", log.Pairs{"error": err.Error()})
		return err
	}
	if err := e.disk.SaveAliasIndex(aliasCopy); err != nil {
		e.logger.Error("failed to persist alias index", log.Pairs{"error": err.Error()})
		return err
	}
	return nil
}

// Close flushes and releases the underlying index backend.
func (e *Engine) Close() error {
	err := e.Flush()
	if cerr := e.disk.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Stats returns the engine's live statistics tracker.
func (e *Engine) Stats() *Stats { return e.stats }
