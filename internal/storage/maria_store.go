package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	_ "github.com/go-sql-driver/mysql"
)

// MariaStore хранит чанки в таблице chunks MariaDB/MySQL.
// Первичный ключ (x, y, z), тело чанка в формате кодека.
type MariaStore struct {
	db      *sql.DB
	codec   *Codec
	logger  *logging.Logger
	timeout time.Duration
}

// NewMariaStore подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	codec, err := NewCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &MariaStore{
		db:      db,
		codec:   codec,
		logger:  logging.GetStorageLogger(),
		timeout: 5 * time.Second,
	}
	if err := s.createTable(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return s, nil
}

func (s *MariaStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS chunks (
			x          INT         NOT NULL,
			y          INT         NOT NULL,
			z          INT         NOT NULL,
			data       MEDIUMBLOB  NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			PRIMARY KEY (x, y, z)
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы chunks: %w", err)
	}
	return nil
}

// Load читает чанк по координатам
func (s *MariaStore) Load(pos vec.Vec3, c *chunk.Chunk) (chunk.LoadingResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM chunks WHERE x = ? AND y = ? AND z = ?",
		pos.X, pos.Y, pos.Z,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chunk.LoadIOError, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		return chunk.LoadIOError, fmt.Errorf("ошибка чтения чанка %v: %w", pos, err)
	}

	if err := s.codec.Decode(data, pos, c); err != nil {
		return ResultOf(err), err
	}
	return chunk.LoadSuccess, nil
}

// Save сохраняет чанк.
// Использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (s *MariaStore) Save(c *chunk.Chunk) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pos := c.Position()
	data := s.codec.Encode(c)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (x, y, z, data) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data)`,
		pos.X, pos.Y, pos.Z, data,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", pos, err)
	}
	s.logger.Trace("Чанк %v сохранён в MariaDB (%d байт)", pos, len(data))
	return nil
}

// Close закрывает пул соединений
func (s *MariaStore) Close() error {
	s.codec.Close()
	return s.db.Close()
}
