package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	OFF
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case OFF:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из строки конфигурации ("debug", "INFO", ...)
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "OFF", "NONE":
		return OFF, nil
	default:
		return INFO, fmt.Errorf("неизвестный уровень логирования: %q", s)
	}
}

// Logger представляет логгер компонента с выводом в консоль и (опционально) в файл
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
	mu              sync.Mutex
}

// Каталог для файловых логов. Пустая строка отключает запись в файлы.
var (
	logDir   = "logs"
	logDirMu sync.RWMutex
)

// SetLogDir задаёт каталог для файлов логов ("" означает только консоль)
func SetLogDir(dir string) {
	logDirMu.Lock()
	logDir = dir
	logDirMu.Unlock()
}

func currentLogDir() string {
	logDirMu.RLock()
	defer logDirMu.RUnlock()
	return logDir
}

// NewLogger создаёт логгер компонента. Файл создаётся в каталоге логов с временной меткой.
func NewLogger(component string) (*Logger, error) {
	l := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    DEBUG,
	}

	dir := currentLogDir()
	if dir == "" {
		return l, nil
	}

	// Создаем директорию для логов
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return l, nil
}

// NewWriterLogger создаёт логгер, пишущий в произвольный writer (удобно для тестов)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", 0),
		minConsoleLevel: level,
		minFileLevel:    OFF,
	}
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// SetLevels задаёт минимальные уровни для консоли и файла
func (l *Logger) SetLevels(console, file LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel = console
	l.minFileLevel = file
	l.mu.Unlock()
}

// Enabled сообщает, будет ли записано сообщение указанного уровня хотя бы в один вывод
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minConsoleLevel || (l.fileLogger != nil && level >= l.minFileLevel)
}

// Close закрывает файл лога
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// log внутренняя функция для логирования
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	toConsole := level >= l.minConsoleLevel && l.consoleLogger != nil
	toFile := level >= l.minFileLevel && l.fileLogger != nil
	if !toConsole && !toFile {
		return
	}

	message := fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, fmt.Sprintf(format, args...))

	if toFile {
		l.fileLogger.Println(message)
	}
	if toConsole {
		l.consoleLogger.Println(message)
	}
}

// Глобальный экземпляр логгера
var (
	defaultLogger   = &Logger{component: "default", consoleLogger: log.New(os.Stdout, "", log.LstdFlags), minConsoleLevel: INFO, minFileLevel: OFF}
	defaultLoggerMu sync.RWMutex
)

// InitDefaultLogger инициализирует глобальный логгер для указанного компонента
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}

	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
	return nil
}

// SetDefaultLogger заменяет глобальный логгер
func SetDefaultLogger(l *Logger) {
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// CloseDefaultLogger закрывает глобальный логгер
func CloseDefaultLogger() {
	if err := Default().Close(); err != nil {
		log.Printf("ошибка закрытия логгера: %v", err)
	}
}

// Default возвращает глобальный логгер
func Default() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Trace логирует сообщение уровня TRACE
func Trace(format string, args ...interface{}) { Default().log(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) { Default().log(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) { Default().log(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) { Default().log(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) { Default().log(ERROR, format, args...) }
