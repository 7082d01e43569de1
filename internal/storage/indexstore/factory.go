package indexstore

import "fmt"

// Config carries the subset of storage configuration the factory needs to
// construct a Backend, decoupled from the config package to avoid an
// import cycle (config does not need to know about indexstore internals).
type Config struct {
	CacheDir string

	BadgerDirectory string

	BBoltFilename string
	BBoltBucket   string

	RedisEndpoint string
	RedisPassword string
	RedisDB       int
}

// New constructs the Backend named by backendType ("filesystem", "badger",
// "bbolt", or "redis"), mirroring the selection trickster's
// registration.GetCache performs over CachingConfig.CacheType.
func New(backendType string, cfg Config) (Backend, error) {
	switch backendType {
	case "", "filesystem":
		return NewFilesystemBackend(cfg.CacheDir), nil
	case "badger":
		return NewBadgerBackend(cfg.BadgerDirectory)
	case "bbolt":
		return NewBBoltBackend(cfg.BBoltFilename, cfg.BBoltBucket)
	case "redis":
		return NewRedisBackend(cfg.RedisEndpoint, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown index backend: %s", backendType)
	}
}
