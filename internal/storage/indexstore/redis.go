package indexstore

import (
	"github.com/go-redis/redis"

	"github.com/edgeproxy/edgeproxy/internal/storage/entrytype"
)

// RedisBackend persists the index maps in Redis, selected via
// storage.index_backend = "redis" (SPEC_FULL.md domain stack). Useful when
// the index should survive a wipe of the cache directory on a shared host;
// blob bodies themselves always stay on the local sharded filesystem tree
// (spec §6) regardless of index backend.
type RedisBackend struct {
	client    *redis.Client
	indexKey  string
	aliasKey  string
}

// NewRedisBackend dials a standard (non-cluster, non-sentinel) Redis
// instance at endpoint.
func NewRedisBackend(endpoint, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     endpoint,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	return &RedisBackend{
		client:   client,
		indexKey: "edgeproxy:index",
		aliasKey: "edgeproxy:alias-index",
	}, nil
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// LoadIndex implements Backend.
func (r *RedisBackend) LoadIndex() (map[string]*entrytype.CacheEntry, error) {
	out := make(map[string]*entrytype.CacheEntry)
	vals, err := r.client.HGetAll(r.indexKey).Result()
	if err != nil {
		return out, nil
	}
	for k, v := range vals {
		e := &entrytype.CacheEntry{}
		if _, err := e.UnmarshalMsg([]byte(v)); err != nil {
			continue
		}
		out[k] = e
	}
	return out, nil
}

// LoadAliasIndex implements Backend.
func (r *RedisBackend) LoadAliasIndex() (map[string]string, error) {
	out, err := r.client.HGetAll(r.aliasKey).Result()
	if err != nil {
		return make(map[string]string), nil
	}
	return out, nil
}

// SaveIndex implements Backend: the entire hash is replaced in one pipeline
// so a concurrent LoadIndex never observes a half-written snapshot.
func (r *RedisBackend) SaveIndex(index map[string]*entrytype.CacheEntry) error {
	pipe := r.client.TxPipeline()
	pipe.Del(r.indexKey)
	fields := make(map[string]interface{}, len(index))
	for k, v := range index {
		data, err := v.MarshalMsg(nil)
		if err != nil {
			return err
		}
		fields[k] = data
	}
	if len(fields) > 0 {
		pipe.HMSet(r.indexKey, fields)
	}
	_, err := pipe.Exec()
	return err
}

// SaveAliasIndex implements Backend.
func (r *RedisBackend) SaveAliasIndex(aliases map[string]string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(r.aliasKey)
	fields := make(map[string]interface{}, len(aliases))
	for k, v := range aliases {
		fields[k] = v
	}
	if len(fields) > 0 {
		pipe.HMSet(r.aliasKey, fields)
	}
	_, err := pipe.Exec()
	return err
}

// Close implements Backend.
func (r *RedisBackend) Close() error { return r.client.Close() }
