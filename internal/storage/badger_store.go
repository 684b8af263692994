package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/dgraph-io/badger/v3"
)

// ErrClosed хранилище закрыто
var ErrClosed = errors.New("storage: хранилище закрыто")

// BadgerStore хранит чанки в BadgerDB
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	codec   *Codec
	logger  *logging.Logger
	mutex   sync.RWMutex
	isReady bool
}

// Key ключ чанка в базе
func Key(pos vec.Vec3) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d", pos.X, pos.Y, pos.Z))
}

// NewBadgerStore открывает базу в каталоге dbPath
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	codec, err := NewCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		codec:   codec,
		logger:  logging.GetStorageLogger(),
		isReady: true,
	}, nil
}

// Close закрывает базу
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.codec.Close()
	return s.db.Close()
}

// Load читает чанк по ключу
func (s *BadgerStore) Load(pos vec.Vec3, c *chunk.Chunk) (chunk.LoadingResult, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return chunk.LoadIOError, ErrClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(Key(pos))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return chunk.LoadIOError, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		return chunk.LoadIOError, fmt.Errorf("ошибка чтения чанка %v: %w", pos, err)
	}

	if err := s.codec.Decode(data, pos, c); err != nil {
		return ResultOf(err), err
	}
	return chunk.LoadSuccess, nil
}

// Save записывает чанк одной транзакцией
func (s *BadgerStore) Save(c *chunk.Chunk) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrClosed
	}

	data := s.codec.Encode(c)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(c.Position()), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", c.Position(), err)
	}

	s.logger.Trace("Чанк %v сохранён в BadgerDB (%d байт)", c.Position(), len(data))
	return nil
}

// Delete удаляет чанк из базы
func (s *BadgerStore) Delete(pos vec.Vec3) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(Key(pos))
	})
}

// Put записывает сырые данные по позиции. Используется инструментами миграции.
func (s *BadgerStore) Put(pos vec.Vec3, data []byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(pos), data)
	})
}
