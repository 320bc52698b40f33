package config

const (
	StorageDriverMemory = "memory"
	StorageDriverFile   = "file"
	StorageDriverRedis  = "redis"
)

type StorageConfig interface {
	GetStorageDriver() string
	GetStorageFile() string
	GetStorageKey() string
	GetRedisURL() string
	GetRedisPrefix() string
}

var _ StorageConfig = mainConfig{}

func (c mainConfig) GetStorageDriver() string {
	return c.StorageDriver
}

func (c mainConfig) GetStorageFile() string {
	return c.StorageFile
}

// GetStorageKey returns the hex-encoded secretbox key for the file storage.
// Empty means the file is written in the clear.
func (c mainConfig) GetStorageKey() string {
	return c.StorageKey
}

func (c mainConfig) GetRedisURL() string {
	return c.RedisURL
}

func (c mainConfig) GetRedisPrefix() string {
	return c.RedisPrefix
}
