package indexstore

import (
	bolt "github.com/coreos/bbolt"

	"github.com/edgeproxy/edgeproxy/internal/storage/entrytype"
)

var (
	entryBucketName = []byte("entries")
	aliasBucketName = []byte("aliases")
)

// BBoltBackend persists the index maps in a BoltDB file, selected via
// storage.index_backend = "bbolt" (SPEC_FULL.md domain stack).
type BBoltBackend struct {
	db     *bolt.DB
	bucket string
}

// NewBBoltBackend opens (creating if necessary) a BoltDB file at filename.
// bucket names the top-level bucket under which entries/aliases
// sub-buckets are created.
func NewBBoltBackend(filename, bucket string) (*BBoltBackend, error) {
	db, err := bolt.Open(filename, 0600, nil)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		bucket = "edgeproxy"
	}
	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(entryBucketName); err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(aliasBucketName); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BBoltBackend{db: db, bucket: bucket}, nil
}

// Name implements Backend.
func (b *BBoltBackend) Name() string { return "bbolt" }

// LoadIndex implements Backend.
func (b *BBoltBackend) LoadIndex() (map[string]*entrytype.CacheEntry, error) {
	out := make(map[string]*entrytype.CacheEntry)
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(b.bucket))
		if root == nil {
			return nil
		}
		eb := root.Bucket(entryBucketName)
		if eb == nil {
			return nil
		}
		return eb.ForEach(func(k, v []byte) error {
			e := &entrytype.CacheEntry{}
			if _, err := e.UnmarshalMsg(v); err != nil {
				return nil
			}
			out[string(k)] = e
			return nil
		})
	})
	if err != nil {
		return make(map[string]*entrytype.CacheEntry), nil
	}
	return out, nil
}

// LoadAliasIndex implements Backend.
func (b *BBoltBackend) LoadAliasIndex() (map[string]string, error) {
	out := make(map[string]string)
	err := b.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(b.bucket))
		if root == nil {
			return nil
		}
		ab := root.Bucket(aliasBucketName)
		if ab == nil {
			return nil
		}
		return ab.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return make(map[string]string), nil
	}
	return out, nil
}

// SaveIndex implements Backend.
func (b *BBoltBackend) SaveIndex(index map[string]*entrytype.CacheEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(b.bucket))
		if err := root.DeleteBucket(entryBucketName); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		eb, err := root.CreateBucket(entryBucketName)
		if err != nil {
			return err
		}
		for k, v := range index {
			data, err := v.MarshalMsg(nil)
			if err != nil {
				return err
			}
			if err := eb.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveAliasIndex implements Backend.
func (b *BBoltBackend) SaveAliasIndex(aliases map[string]string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(b.bucket))
		if err := root.DeleteBucket(aliasBucketName); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		ab, err := root.CreateBucket(aliasBucketName)
		if err != nil {
			return err
		}
		for k, v := range aliases {
			if err := ab.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Backend.
func (b *BBoltBackend) Close() error { return b.db.Close() }
