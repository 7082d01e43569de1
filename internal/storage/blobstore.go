package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/golang/snappy"
)

// blobStore is the hot tier (in-memory map from blob hash to bytes) backed
// on disk by the sharded <cache-dir>/blobs/<first-2>/<hash> layout from
// spec §6. It owns no knowledge of which metadata entries reference a
// blob — the engine's reference counting lives at the index level.
type blobStore struct {
	mu          sync.RWMutex
	hot         map[string][]byte
	dir         string
	compression bool
}

func newBlobStore(cacheDir string, compression bool) *blobStore {
	return &blobStore{
		hot:         make(map[string][]byte),
		dir:         filepath.Join(cacheDir, "blobs"),
		compression: compression,
	}
}

// hashBody computes the lowercase hex SHA-256 of a body (spec §3).
func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (s *blobStore) path(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.dir, "_", hash)
	}
	return filepath.Join(s.dir, hash[:2], hash)
}

// hasHot reports whether hash is known to the hot tier, without touching disk.
func (s *blobStore) hasHot(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hot[hash]
	return ok
}

// existsOnDisk reports whether a blob file is present for hash.
func (s *blobStore) existsOnDisk(hash string) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// get returns the body for hash, checking the hot tier first and falling
// back to disk (spec §4.3 get_blob). A disk read populates the hot tier.
func (s *blobStore) get(hash string) ([]byte, bool) {
	s.mu.RLock()
	if b, ok := s.hot[hash]; ok {
		s.mu.RUnlock()
		return b, true
	}
	s.mu.RUnlock()

	raw, err := ioutil.ReadFile(s.path(hash))
	if err != nil {
		return nil, false
	}
	body := raw
	if s.compression {
		if decoded, err := snappy.Decode(nil, raw); err == nil {
			body = decoded
		}
	}

	s.mu.Lock()
	s.hot[hash] = body
	s.mu.Unlock()

	return body, true
}

// put writes the body to disk (temp-file-then-rename) and the hot tier if
// the hash isn't already known. Returns whether this call observed a
// pre-existing blob (for the dedup-marker telemetry in spec §4.3) and any
// write error. On a write error, the caller must not commit metadata
// referencing this hash (spec §7).
func (s *blobStore) put(hash string, body []byte) (dedup bool, err error) {
	if s.hasHot(hash) || s.existsOnDisk(hash) {
		return true, nil
	}

	dir := filepath.Join(s.dir, hash[:2])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}

	toWrite := body
	if s.compression {
		toWrite = snappy.Encode(nil, body)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%d", hash, os.Getpid(), nextTmpSuffix()))
	if err := ioutil.WriteFile(tmp, toWrite, 0644); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, s.path(hash)); err != nil {
		os.Remove(tmp)
		return false, err
	}

	s.mu.Lock()
	s.hot[hash] = body
	s.mu.Unlock()

	return false, nil
}

// remove deletes hash from the hot tier and unlinks its disk file. The
// unlink error is returned to the caller (spec §7: eviction unlink failures
// are logged by the caller and leave an orphan for the next startup to reap).
func (s *blobStore) remove(hash string) error {
	s.mu.Lock()
	delete(s.hot, hash)
	s.mu.Unlock()
	return os.Remove(s.path(hash))
}

// ensureDirs creates the blobs/ root.
func (s *blobStore) ensureDirs() error {
	return os.MkdirAll(s.dir, 0755)
}

var tmpSeq uint64

// nextTmpSuffix disambiguates concurrent temp-file names sharing a PID, the
// way indexstore/filesystem.go's atomicWrite does with its own sequence
// counter; it has no cryptographic requirement.
func nextTmpSuffix() uint64 {
	return atomic.AddUint64(&tmpSeq, 1)
}
