package storage

import (
	"testing"
	"time"

	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Порт 1 на loopback закрыт, подключение отвергается сразу

func TestRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{Addr: "127.0.0.1:1", Timeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestRedisStore_Key(t *testing.T) {
	s := &RedisStore{keyPrefix: "engine:"}
	assert.Equal(t, "engine:chunk:-1:2:-3", s.key(vec.Vec3{X: -1, Y: 2, Z: -3}))
}

func TestMariaStore_Unreachable(t *testing.T) {
	_, err := NewMariaStore("engine:secret@tcp(127.0.0.1:1)/chunks?timeout=1s")
	assert.Error(t, err)
}

func TestMongoStore_InvalidURI(t *testing.T) {
	_, err := NewMongoStore(MongoConfig{URI: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestOpen_RemoteBackends(t *testing.T) {
	_, err := Open(Options{Backend: BackendRedis, Redis: RedisConfig{Addr: "127.0.0.1:1", Timeout: time.Second}})
	assert.Error(t, err)

	_, err = Open(Options{Backend: BackendMaria, MariaDSN: "not a dsn"})
	assert.Error(t, err)
}
