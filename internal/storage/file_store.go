package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
)

// FileStore хранит каждый чанк в отдельном файле каталога
type FileStore struct {
	dir    string
	codec  *Codec
	logger *logging.Logger
}

// FileName имя файла чанка
func FileName(pos vec.Vec3) string {
	return fmt.Sprintf("x%dy%dz%d.chunk", pos.X, pos.Y, pos.Z)
}

// NewFileStore создаёт хранилище в каталоге dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
	}
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	return &FileStore{
		dir:    dir,
		codec:  codec,
		logger: logging.GetStorageLogger(),
	}, nil
}

// Path полный путь к файлу чанка
func (s *FileStore) Path(pos vec.Vec3) string {
	return filepath.Join(s.dir, FileName(pos))
}

// Load читает чанк из файла
func (s *FileStore) Load(pos vec.Vec3, c *chunk.Chunk) (chunk.LoadingResult, error) {
	data, err := os.ReadFile(s.Path(pos))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return chunk.LoadIOError, fmt.Errorf("%w: %v", ErrNotFound, pos)
		}
		return chunk.LoadIOError, err
	}
	if err := s.codec.Decode(data, pos, c); err != nil {
		return ResultOf(err), err
	}
	return chunk.LoadSuccess, nil
}

// Save записывает чанк во временный файл и переименовывает его
func (s *FileStore) Save(c *chunk.Chunk) error {
	data := s.codec.Encode(c)
	target := s.Path(c.Position())

	tmp, err := os.CreateTemp(s.dir, FileName(c.Position())+".*.tmp")
	if err != nil {
		return fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("не удалось записать чанк %v: %w", c.Position(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("не удалось закрыть файл чанка %v: %w", c.Position(), err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("не удалось переименовать файл чанка %v: %w", c.Position(), err)
	}

	s.logger.Trace("Чанк %v записан в %s (%d байт)", c.Position(), target, len(data))
	return nil
}

// Close освобождает кодек
func (s *FileStore) Close() error {
	s.codec.Close()
	return nil
}
