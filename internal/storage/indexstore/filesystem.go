package indexstore

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/storage/entrytype"
)

// FilesystemBackend persists the index maps as plain JSON files with an
// atomic write-temp-then-rename, the spec-mandated default (spec §6).
type FilesystemBackend struct {
	dir       string
	indexPath string
	aliasPath string
	seq       uint64
}

// NewFilesystemBackend returns a Backend rooted at cacheDir. It does not
// touch disk; cacheDir must exist before the first save (the engine's Init
// creates it after storage.New has constructed the backend).
func NewFilesystemBackend(cacheDir string) *FilesystemBackend {
	return &FilesystemBackend{
		dir:       cacheDir,
		indexPath: filepath.Join(cacheDir, "index.json"),
		aliasPath: filepath.Join(cacheDir, "alias-index.json"),
	}
}

// Name implements Backend.
func (b *FilesystemBackend) Name() string { return "filesystem" }

// LoadIndex implements Backend. A read or parse failure returns an empty map
// and a nil error, so the engine starts fresh; no warning is logged for a
// corrupt index file.
func (b *FilesystemBackend) LoadIndex() (map[string]*entrytype.CacheEntry, error) {
	out := make(map[string]*entrytype.CacheEntry)
	data, err := ioutil.ReadFile(b.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return make(map[string]*entrytype.CacheEntry), nil
	}
	return out, nil
}

// LoadAliasIndex implements Backend.
func (b *FilesystemBackend) LoadAliasIndex() (map[string]string, error) {
	out := make(map[string]string)
	data, err := ioutil.ReadFile(b.aliasPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return make(map[string]string), nil
	}
	return out, nil
}

// SaveIndex implements Backend with an atomic temp-file-then-rename write.
func (b *FilesystemBackend) SaveIndex(index map[string]*entrytype.CacheEntry) error {
	data, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return b.atomicWrite(b.indexPath, data)
}

// SaveAliasIndex implements Backend.
func (b *FilesystemBackend) SaveAliasIndex(aliases map[string]string) error {
	data, err := json.Marshal(aliases)
	if err != nil {
		return err
	}
	return b.atomicWrite(b.aliasPath, data)
}

func (b *FilesystemBackend) atomicWrite(path string, data []byte) error {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36) + "." +
		strconv.FormatUint(atomic.AddUint64(&b.seq, 1), 36) + "." +
		strconv.Itoa(os.Getpid())
	tmp := fmt.Sprintf("%s.tmp.%s", path, suffix)
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Close implements Backend; the filesystem backend holds no resources.
func (b *FilesystemBackend) Close() error { return nil }
