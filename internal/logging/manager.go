package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Компоненты движка, у каждого свой логгер и свой файл
const (
	ComponentChunk     = "chunk"
	ComponentStorage   = "storage"
	ComponentWorld     = "world"
	ComponentServer    = "server"
	ComponentGenerator = "generator"
	ComponentEventBus  = "eventbus"
)

// ErrUnknownComponent у компонента ещё нет логгера
var ErrUnknownComponent = errors.New("логгер компонента не создан")

// Registry хранит логгеры компонентов. Уровни, заданные через SetLevels,
// получают и уже созданные логгеры, и те, что появятся позже.
type Registry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	leveled bool
	console LogLevel
	file    LogLevel
}

// NewRegistry пустой реестр с уровнями по умолчанию
func NewRegistry() *Registry {
	return &Registry{loggers: make(map[string]*Logger)}
}

var (
	registry     *Registry
	registryOnce sync.Once
)

// Loggers общий реестр процесса
func Loggers() *Registry {
	registryOnce.Do(func() { registry = NewRegistry() })
	return registry
}

// Open возвращает логгер компонента, создавая его и файл при первом обращении
func (r *Registry) Open(component string) (*Logger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер %s: %w", component, err)
	}
	if r.leveled {
		l.SetLevels(r.console, r.file)
	}
	r.loggers[component] = l
	return l, nil
}

// Get как Open, но при ошибке файла пишет только в stdout
func (r *Registry) Get(component string) *Logger {
	l, err := r.Open(component)
	if err == nil {
		return l
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	level := INFO
	if r.leveled {
		level = r.console
	}
	l = NewWriterLogger(component, os.Stdout, level)
	r.loggers[component] = l
	return l
}

// SetLevels задаёт уровни всем логгерам реестра, включая будущие
func (r *Registry) SetLevels(console, file LogLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leveled = true
	r.console, r.file = console, file
	for _, l := range r.loggers {
		l.SetLevels(console, file)
	}
}

// SetComponentLevels меняет уровни одного уже созданного логгера
func (r *Registry) SetComponentLevels(component string, console, file LogLevel) error {
	r.mu.Lock()
	l, ok := r.loggers[component]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, component)
	}
	l.SetLevels(console, file)
	return nil
}

// Components имена компонентов с логгерами, по алфавиту
func (r *Registry) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close закрывает файлы всех логгеров и очищает реестр
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, l := range r.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("логгер %s: %w", name, err))
		}
	}
	r.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// GetComponentLogger логгер компонента из общего реестра
func GetComponentLogger(component string) *Logger {
	return Loggers().Get(component)
}

func GetChunkLogger() *Logger   { return GetComponentLogger(ComponentChunk) }
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
func GetWorldLogger() *Logger   { return GetComponentLogger(ComponentWorld) }
func GetServerLogger() *Logger  { return GetComponentLogger(ComponentServer) }
