package indexstore

import (
	"github.com/dgraph-io/badger"

	"github.com/edgeproxy/edgeproxy/internal/storage/entrytype"
)

// aliasMarker prefixes alias-index keys so they share a Badger keyspace
// with main-index keys without colliding.
const aliasMarker = "alias:"
const entryMarker = "entry:"

// BadgerBackend persists the index maps in an embedded BadgerDB, selected
// via storage.index_backend = "badger" (SPEC_FULL.md domain stack).
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend opens (creating if necessary) a Badger database rooted
// at directory.
func NewBadgerBackend(directory string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(directory)
	opts.Dir = directory
	opts.ValueDir = directory
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerBackend{db: db}, nil
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return "badger" }

// LoadIndex implements Backend.
func (b *BadgerBackend) LoadIndex() (map[string]*entrytype.CacheEntry, error) {
	out := make(map[string]*entrytype.CacheEntry)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(entryMarker)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(entryMarker):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			e := &entrytype.CacheEntry{}
			if _, err := e.UnmarshalMsg(val); err != nil {
				continue
			}
			out[key] = e
		}
		return nil
	})
	if err != nil {
		return make(map[string]*entrytype.CacheEntry), nil
	}
	return out, nil
}

// LoadAliasIndex implements Backend.
func (b *BadgerBackend) LoadAliasIndex() (map[string]string, error) {
	out := make(map[string]string)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(aliasMarker)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(aliasMarker):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			out[key] = string(val)
		}
		return nil
	})
	if err != nil {
		return make(map[string]string), nil
	}
	return out, nil
}

// SaveIndex implements Backend, replacing the entire entry keyspace in one
// transaction.
func (b *BadgerBackend) SaveIndex(index map[string]*entrytype.CacheEntry) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, entryMarker); err != nil {
			return err
		}
		for k, v := range index {
			data, err := v.MarshalMsg(nil)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(entryMarker+k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveAliasIndex implements Backend.
func (b *BadgerBackend) SaveAliasIndex(aliases map[string]string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, aliasMarker); err != nil {
			return err
		}
		for k, v := range aliases {
			if err := txn.Set([]byte(aliasMarker+k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func deletePrefix(txn *badger.Txn, prefix string) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	keys := make([][]byte, 0)
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		k := it.Item().KeyCopy(nil)
		keys = append(keys, k)
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error { return b.db.Close() }
