package storage

import (
	"testing"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/config"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &config.StorageConfig{
		CacheDir:     t.TempDir(),
		MaxSizeBytes: 1 << 20,
		BodyTTL:      50 * time.Millisecond,
		StaleTTL:     time.Hour,
		Debounce:     10 * time.Millisecond,
		Compression:  false,
		IndexBackend: "filesystem",
	}
	e, err := New(cfg, log.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return e
}

func TestPutThenPeekMetaObservesNewEntry(t *testing.T) {
	e := newTestEngine(t)
	body := []byte("hello world")
	if err := e.Put("key1", "https://example.com/a.js", body, map[string][]string{
		"content-type": {"application/javascript"},
		"etag":         {`"abc"`},
	}, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	meta := e.PeekMeta("key1")
	if meta == nil {
		t.Fatalf("PeekMeta() = nil, want entry")
	}
	if meta.ETag != `"abc"` {
		t.Fatalf("ETag = %q, want %q", meta.ETag, `"abc"`)
	}
	if meta.Size != int64(len(body)) {
		t.Fatalf("Size = %d, want %d", meta.Size, len(body))
	}
}

func TestGetBlobReturnsStoredBody(t *testing.T) {
	e := newTestEngine(t)
	body := []byte("the quick brown fox")
	if err := e.Put("key1", "https://example.com/a.js", body, nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	meta := e.PeekMeta("key1")
	got, ok := e.GetBlob(meta.BlobHash)
	if !ok {
		t.Fatalf("GetBlob() not found")
	}
	if string(got) != string(body) {
		t.Fatalf("GetBlob() = %q, want %q", got, body)
	}
}

func TestIsFreshWithinBodyTTL(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("key1", "https://example.com/a.js", []byte("x"), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	meta := e.PeekMeta("key1")
	if !e.IsFresh(meta) {
		t.Fatalf("IsFresh() = false immediately after Put, want true")
	}

	time.Sleep(80 * time.Millisecond)
	meta = e.PeekMeta("key1")
	if e.IsFresh(meta) {
		t.Fatalf("IsFresh() = true after body TTL elapsed, want false")
	}
}

func TestPeekMetaAllowStaleFallsOffAfterStaleTTL(t *testing.T) {
	e := newTestEngine(t)
	e.staleTTL = 20 * time.Millisecond
	if err := e.Put("key1", "https://example.com/a.js", []byte("x"), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if e.PeekMetaAllowStale("key1") == nil {
		t.Fatalf("PeekMetaAllowStale() = nil immediately after Put, want entry")
	}
	time.Sleep(40 * time.Millisecond)
	if e.PeekMetaAllowStale("key1") != nil {
		t.Fatalf("PeekMetaAllowStale() = entry after stale TTL elapsed, want nil")
	}
}

func TestPeekAliasResolvesToCanonicalEntry(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("canonical-key", "https://cdn.example.com/app.js", []byte("body"), nil, "script", "third-party", "alias|cdn.example.com/app.js"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	meta, key := e.PeekAlias("alias|cdn.example.com/app.js")
	if meta == nil {
		t.Fatalf("PeekAlias() = nil, want entry")
	}
	if key != "canonical-key" {
		t.Fatalf("PeekAlias() key = %q, want canonical-key", key)
	}
}

func TestRefreshTTLResetsFreshness(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Put("key1", "https://example.com/a.js", []byte("x"), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if e.IsFresh(e.PeekMeta("key1")) {
		t.Fatalf("expected entry to be stale before refresh")
	}
	e.RefreshTTL("key1")
	if !e.IsFresh(e.PeekMeta("key1")) {
		t.Fatalf("expected entry fresh immediately after RefreshTTL")
	}
}

func TestPutDocumentDoesNotTrackDedup(t *testing.T) {
	e := newTestEngine(t)
	body := []byte("<html></html>")
	if err := e.PutDocument("dockey1", "https://example.com/", body, map[string][]string{"etag": {`"v1"`}}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if err := e.PutDocument("dockey2", "https://example.com/other", body, map[string][]string{"etag": {`"v1"`}}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}
	if e.Stats().Snapshot(0).DedupHits != 0 {
		t.Fatalf("expected PutDocument not to record dedup hits")
	}
}

func TestPutRecordsDedupOnIdenticalBody(t *testing.T) {
	e := newTestEngine(t)
	body := []byte("shared body")
	if err := e.Put("keyA", "https://example.com/a.js", body, nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := e.Put("keyB", "https://example.com/b.js", body, nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if e.Stats().Snapshot(0).DedupHits != 1 {
		t.Fatalf("DedupHits = %d, want 1", e.Stats().Snapshot(0).DedupHits)
	}
}

func TestEvictionDropsOldestEntriesWhenOverBudget(t *testing.T) {
	e := newTestEngine(t)
	e.maxSize = 30

	if err := e.Put("key1", "https://example.com/1.js", make([]byte, 20), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := e.Put("key2", "https://example.com/2.js", make([]byte, 20), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if e.PeekMeta("key1") != nil {
		t.Fatalf("expected oldest entry key1 to be evicted")
	}
	if e.PeekMeta("key2") == nil {
		t.Fatalf("expected newest entry key2 to survive eviction")
	}
}

func TestFlushPersistsAcrossEngineRestart(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := &config.StorageConfig{
		CacheDir:     cacheDir,
		MaxSizeBytes: 1 << 20,
		BodyTTL:      time.Hour,
		StaleTTL:     time.Hour,
		Debounce:     time.Hour,
		IndexBackend: "filesystem",
	}
	logger := log.Nop()

	e1, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e1.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := e1.Put("key1", "https://example.com/a.js", []byte("persisted"), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	e2, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e2.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	meta := e2.PeekMeta("key1")
	if meta == nil {
		t.Fatalf("expected entry to survive restart via persisted index")
	}
	body, ok := e2.GetBlob(meta.BlobHash)
	if !ok || string(body) != "persisted" {
		t.Fatalf("expected blob to survive restart, got %q ok=%v", body, ok)
	}
}

func TestInitDropsOrphanedMetadataWhoseBlobIsMissing(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := &config.StorageConfig{
		CacheDir:     cacheDir,
		MaxSizeBytes: 1 << 20,
		BodyTTL:      time.Hour,
		StaleTTL:     time.Hour,
		Debounce:     time.Hour,
		IndexBackend: "filesystem",
	}
	logger := log.Nop()

	e1, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e1.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := e1.Put("key1", "https://example.com/a.js", []byte("body"), nil, "script", "third-party", ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	meta := e1.PeekMeta("key1")
	if err := e1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e1.blobs.remove(meta.BlobHash); err != nil {
		t.Fatalf("remove() error = %v", err)
	}

	e2, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e2.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if e2.PeekMeta("key1") != nil {
		t.Fatalf("expected orphaned entry to be dropped at startup")
	}
}
