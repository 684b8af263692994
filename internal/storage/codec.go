package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/klauspost/compress/zstd"
)

// Signature первые байты файла чанка
const Signature = "VG_CHUNK"

// FormatVersion текущая версия формата
const FormatVersion uint16 = 1

// headerSize сигнатура, версия, позиция, флаги декорирования
const headerSize = len(Signature) + 2 + 3*4 + 2

// sectionsSize размер несжатых данных блоков
const sectionsSize = chunk.SectionCount * chunk.SectionVolume * 4

// updateSize индекс (uint16) и тик (uint64)
const updateSize = 2 + 8

var (
	// ErrBadSignature данные не являются файлом чанка
	ErrBadSignature = errors.New("storage: неверная сигнатура")
	// ErrUnsupportedVersion версия формата не поддерживается
	ErrUnsupportedVersion = errors.New("storage: неподдерживаемая версия формата")
	// ErrCorrupt тело файла повреждено
	ErrCorrupt = errors.New("storage: повреждённые данные")
	// ErrPositionMismatch позиция в файле не совпадает с запрошенной
	ErrPositionMismatch = errors.New("storage: позиция не совпадает")
	// ErrNotFound чанк отсутствует в хранилище
	ErrNotFound = errors.New("storage: чанк не найден")
)

// ResultOf переводит ошибку кодека или хранилища в итог загрузки
func ResultOf(err error) chunk.LoadingResult {
	switch {
	case err == nil:
		return chunk.LoadSuccess
	case errors.Is(err, ErrPositionMismatch):
		return chunk.LoadValidationError
	case errors.Is(err, ErrBadSignature), errors.Is(err, ErrUnsupportedVersion), errors.Is(err, ErrCorrupt):
		return chunk.LoadFormatError
	default:
		return chunk.LoadIOError
	}
}

// Codec бинарный формат чанка. Тело сжимается zstd.
// Encode и Decode можно вызывать из нескольких горутин.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec создаёт кодек
func NewCodec() (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("не удалось создать zstd decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

// Encode сериализует чанк. Вызывающий удерживает токен чтения.
func (c *Codec) Encode(ch *chunk.Chunk) []byte {
	body := make([]byte, sectionsSize, sectionsSize+updateSize*(ch.BlockUpdates().Len()+ch.FluidUpdates().Len())+8)
	for i := 0; i < chunk.SectionCount; i++ {
		s := ch.Section(i)
		if s == nil {
			continue
		}
		off := i * chunk.SectionVolume * 4
		for j, b := range s.Blocks {
			binary.LittleEndian.PutUint32(body[off+j*4:], b)
		}
	}
	body = appendUpdates(body, ch.BlockUpdates().Entries())
	body = appendUpdates(body, ch.FluidUpdates().Entries())

	pos := ch.Position()
	out := make([]byte, 0, headerSize+sectionsSize/4)
	out = append(out, Signature...)
	out = binary.LittleEndian.AppendUint16(out, FormatVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(pos.X)))
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(pos.Y)))
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(pos.Z)))
	out = binary.LittleEndian.AppendUint16(out, uint16(ch.Decoration()))
	return c.encoder.EncodeAll(body, out)
}

func appendUpdates(dst []byte, updates []chunk.ScheduledUpdate) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(updates)))
	for _, u := range updates {
		dst = binary.LittleEndian.AppendUint16(dst, u.Index)
		dst = binary.LittleEndian.AppendUint64(dst, u.Due)
	}
	return dst
}

// Header заголовок файла чанка
type Header struct {
	Version    uint16
	Position   vec.Vec3
	Decoration chunk.Decoration
}

// ReadHeader разбирает заголовок без распаковки тела
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < headerSize {
		return h, fmt.Errorf("%w: %d байт", ErrBadSignature, len(data))
	}
	if !bytes.Equal(data[:len(Signature)], []byte(Signature)) {
		return h, ErrBadSignature
	}
	p := data[len(Signature):]
	h.Version = binary.LittleEndian.Uint16(p)
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	h.Position = vec.Vec3{
		X: int(int32(binary.LittleEndian.Uint32(p[2:]))),
		Y: int(int32(binary.LittleEndian.Uint32(p[6:]))),
		Z: int(int32(binary.LittleEndian.Uint32(p[10:]))),
	}
	h.Decoration = chunk.Decoration(binary.LittleEndian.Uint16(p[14:]))
	return h, nil
}

// Decode читает данные в чанк ch, ожидая позицию pos.
// Чанк изменяется только если данные целиком корректны.
func (c *Codec) Decode(data []byte, pos vec.Vec3, ch *chunk.Chunk) error {
	h, err := ReadHeader(data)
	if err != nil {
		return err
	}
	if h.Position != pos {
		return fmt.Errorf("%w: в файле %v, ожидалось %v", ErrPositionMismatch, h.Position, pos)
	}
	if h.Decoration&^chunk.DecorationAll != 0 {
		return fmt.Errorf("%w: флаги декорирования 0x%x", ErrCorrupt, uint16(h.Decoration))
	}

	body, err := c.decoder.DecodeAll(data[headerSize:], make([]byte, 0, sectionsSize+64))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(body) < sectionsSize {
		return fmt.Errorf("%w: тело %d байт", ErrCorrupt, len(body))
	}

	rest := body[sectionsSize:]
	blockUpdates, rest, err := readUpdates(rest)
	if err != nil {
		return err
	}
	fluidUpdates, rest, err := readUpdates(rest)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: лишние %d байт", ErrCorrupt, len(rest))
	}

	ch.EnsureSections()
	for i := 0; i < chunk.SectionCount; i++ {
		s := ch.Section(i)
		off := i * chunk.SectionVolume * 4
		for j := range s.Blocks {
			s.Blocks[j] = binary.LittleEndian.Uint32(body[off+j*4:])
		}
	}
	ch.RestoreDecoration(h.Decoration)
	ch.BlockUpdates().Restore(blockUpdates)
	ch.FluidUpdates().Restore(fluidUpdates)
	return nil
}

func readUpdates(p []byte) ([]chunk.ScheduledUpdate, []byte, error) {
	if len(p) < 4 {
		return nil, nil, fmt.Errorf("%w: нет счётчика обновлений", ErrCorrupt)
	}
	n := int(binary.LittleEndian.Uint32(p))
	p = p[4:]
	if n < 0 || n > len(p)/updateSize {
		return nil, nil, fmt.Errorf("%w: %d обновлений не помещаются в %d байт", ErrCorrupt, n, len(p))
	}
	updates := make([]chunk.ScheduledUpdate, n)
	for i := range updates {
		updates[i] = chunk.ScheduledUpdate{
			Index: binary.LittleEndian.Uint16(p),
			Due:   binary.LittleEndian.Uint64(p[2:]),
		}
		if int(updates[i].Index) >= chunk.Size*chunk.Size*chunk.Size {
			return nil, nil, fmt.Errorf("%w: индекс блока %d", ErrCorrupt, updates[i].Index)
		}
		p = p[updateSize:]
	}
	return updates, p, nil
}
