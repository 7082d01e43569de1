// Package indexstore abstracts persistence of the Storage Engine's main
// index and alias index (spec §6). The spec mandates a plain-JSON snapshot
// on the local filesystem as the baseline; this package additionally offers
// Badger, BBolt, and Redis-backed implementations, selected the way
// Trickster's CachingConfig.CacheType selects among its own cache backends,
// for deployments that want the index to survive a cache-directory wipe or
// to share it across a process restart without re-walking the blob tree.
package indexstore

import "github.com/edgeproxy/edgeproxy/internal/storage/entrytype"

// Backend persists and reloads the engine's two index maps. Implementations
// do not interpret entry contents; they are pure key/value stores keyed by
// the hex cache key (main index) or the alias string (alias index).
type Backend interface {
	// Name identifies the backend for logging ("filesystem", "badger",
	// "bbolt", "redis").
	Name() string
	// LoadIndex returns the persisted main index, or an empty map if none
	// exists yet or the persisted form failed to parse (spec §7).
	LoadIndex() (map[string]*entrytype.CacheEntry, error)
	// LoadAliasIndex returns the persisted alias index.
	LoadAliasIndex() (map[string]string, error)
	// SaveIndex atomically persists the full main index.
	SaveIndex(map[string]*entrytype.CacheEntry) error
	// SaveAliasIndex atomically persists the full alias index.
	SaveAliasIndex(map[string]string) error
	// Close releases any resources (open DB handles, connections).
	Close() error
}
