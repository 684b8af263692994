package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	Timeout   time.Duration // Таймаут одной операции
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "chunk-engine:",
		Timeout:   5 * time.Second,
	}
}

// RedisStore хранит закодированные чанки строками Redis
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
	codec     *Codec
	logger    *logging.Logger
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	def := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
		MaxRetries:  1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis %s: %w", cfg.Addr, err)
	}

	codec, err := NewCodec()
	if err != nil {
		client.Close()
		return nil, err
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.Timeout,
		codec:     codec,
		logger:    logging.GetStorageLogger(),
	}
	s.logger.Info("🔴 Чанки хранятся в Redis %s (префикс %s)", cfg.Addr, cfg.KeyPrefix)
	return s, nil
}

func (s *RedisStore) key(pos vec.Vec3) string {
	return s.keyPrefix + string(Key(pos))
}

// Load читает чанк по ключу
func (s *RedisStore) Load(pos vec.Vec3, c *chunk.Chunk) (chunk.LoadingResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(pos)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return chunk.LoadIOError, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		return chunk.LoadIOError, fmt.Errorf("ошибка чтения чанка %v из Redis: %w", pos, err)
	}

	if err := s.codec.Decode(data, pos, c); err != nil {
		return ResultOf(err), err
	}
	return chunk.LoadSuccess, nil
}

// Save записывает чанк без срока жизни
func (s *RedisStore) Save(c *chunk.Chunk) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data := s.codec.Encode(c)
	if err := s.client.Set(ctx, s.key(c.Position()), data, 0).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v в Redis: %w", c.Position(), err)
	}
	s.logger.Trace("Чанк %v сохранён в Redis (%d байт)", c.Position(), len(data))
	return nil
}

// Close закрывает соединение
func (s *RedisStore) Close() error {
	s.codec.Close()
	return s.client.Close()
}
