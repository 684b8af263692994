// Package storage реализует сохранение чанков: общий бинарный формат
// и хранилища поверх него: файлы, BadgerDB, Redis, MariaDB и MongoDB.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/annel0/chunk-engine/internal/chunk"
)

// Backend вид хранилища
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendRedis  Backend = "redis"
	BackendMaria  Backend = "mariadb"
	BackendMongo  Backend = "mongo"
	// BackendNone мир без сохранения, чанки всегда генерируются
	BackendNone Backend = "none"
)

// Store хранилище чанков
type Store interface {
	chunk.Persistence
	Close() error
}

// Options параметры открытия хранилища
type Options struct {
	Backend Backend
	Dir     string
	Redis   RedisConfig
	// MariaDSN строка подключения для BackendMaria
	MariaDSN string
	Mongo    MongoConfig
}

// Open открывает хранилище по параметрам. Для BackendNone возвращает nil.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(opts.Dir, "chunks"))
	case BackendBadger:
		return NewBadgerStore(filepath.Join(opts.Dir, "world"))
	case BackendRedis:
		return NewRedisStore(opts.Redis)
	case BackendMaria:
		return NewMariaStore(opts.MariaDSN)
	case BackendMongo:
		return NewMongoStore(opts.Mongo)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище %q", opts.Backend)
	}
}
