package chunk

import (
	"context"
	"errors"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
)

// LoadingResult итог загрузки чанка
type LoadingResult uint8

const (
	LoadSuccess LoadingResult = iota
	// LoadIOError файла нет или он не читается
	LoadIOError
	// LoadFormatError неверная сигнатура, версия или повреждённые данные
	LoadFormatError
	// LoadValidationError позиция в файле не совпадает с ожидаемой
	LoadValidationError
)

func (r LoadingResult) String() string {
	switch r {
	case LoadSuccess:
		return "success"
	case LoadIOError:
		return "io_error"
	case LoadFormatError:
		return "format_error"
	case LoadValidationError:
		return "validation_error"
	default:
		return "unknown"
	}
}

// Persistence загрузка и сохранение чанков
type Persistence interface {
	// Load читает чанк с позиции pos в c. Ошибка поясняет неуспешный результат.
	Load(pos vec.Vec3, c *Chunk) (LoadingResult, error)
	// Save сохраняет чанк. Вызывается при удержании токена чтения.
	Save(c *Chunk) error
}

// Extents прямоугольная область в координатах чанков (включительно)
type Extents struct {
	Min vec.Vec3
	Max vec.Vec3
}

// Contains лежит ли позиция чанка в области
func (e Extents) Contains(p vec.Vec3) bool {
	return p.X >= e.Min.X && p.X <= e.Max.X &&
		p.Y >= e.Min.Y && p.Y <= e.Max.Y &&
		p.Z >= e.Min.Z && p.Z <= e.Max.Z
}

// Generator создаёт контексты генерации и декорирования
type Generator interface {
	CreateGenerationContext(pos vec.Vec3) GenerationContext
	CreateDecorationContext(pos vec.Vec3, extents Extents) DecorationContext
}

// GenerationContext генерация содержимого одного чанка
type GenerationContext interface {
	Generate(ctx context.Context, c *Chunk) error
	Close()
}

// DecorationContext декорирование центра чанка и общих углов
type DecorationContext interface {
	DecorateCenter(ctx context.Context, c *Chunk) error
	Decorate(ctx context.Context, n *Neighborhood) error
	Close()
}

// Context связывает автомат чанков с миром-владельцем
type Context struct {
	Owner       *access.Owner
	Generator   Generator
	Persistence Persistence
	Dispatcher  *Dispatcher
	Logger      *logging.Logger

	// Activate вызывается для чанка, который ещё не был активен
	Activate Activator
	// Reactivate вызывается для чанка, который уже был активен
	Reactivate Activator
	// Deactivate вызывается перед выгрузкой чанка
	Deactivate Deactivator

	// OnActivated и OnDeactivated вызываются при входе в Active и выходе из него
	OnActivated   func(c *Chunk)
	OnDeactivated func(c *Chunk)
	// OnLoaded получает итог каждой попытки загрузки
	OnLoaded func(c *Chunk, result LoadingResult)
	// OnSaved получает итог каждой попытки сохранения
	OnSaved func(c *Chunk, err error)
}

var (
	errNoOwner     = errors.New("chunk: не задан токен владельца")
	errNoGenerator = errors.New("chunk: не задан генератор")
)

func (ctx *Context) validate() error {
	if ctx.Owner == nil {
		return errNoOwner
	}
	if ctx.Generator == nil {
		return errNoGenerator
	}
	if ctx.Dispatcher == nil {
		ctx.Dispatcher = NewDispatcher(4)
	}
	if ctx.Logger == nil {
		ctx.Logger = logging.GetChunkLogger()
	}
	return nil
}

// ActivateWhenRequested активирует чанк, если уровень запроса требует активности
func ActivateWhenRequested(c *Chunk) State {
	if c.Level().IsActive() && c.CanBeActive() {
		return NewActive()
	}
	return nil
}
