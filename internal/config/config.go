package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации движка чанков.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Database   DatabaseConfig   `yaml:"database"`
	EventBus   EventBusConfig   `yaml:"eventbus"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type WorldConfig struct {
	Seed    int64  `yaml:"seed"`
	SaveDir string `yaml:"save_dir"`
	// Storage file, badger, redis, mariadb, mongo или none
	Storage       string `yaml:"storage"`
	AutosaveTicks int    `yaml:"autosave_ticks"`
	PoolCapacity  int    `yaml:"pool_capacity"`
}

type SchedulingConfig struct {
	// Strategy max-throughput или low-impact; стратегия до перехода в интерактивный режим
	Strategy       string `yaml:"strategy"`
	BudgetCeiling  int    `yaml:"budget_ceiling"`
	BudgetRecovery int    `yaml:"budget_recovery"`
	BudgetFloor    int    `yaml:"budget_floor"`
	Workers        int    `yaml:"workers"`
	TickMillis     int    `yaml:"tick_ms"`
}

// DatabaseConfig подключения внешних хранилищ чанков
type DatabaseConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	// MariaDSN строка подключения user:pass@tcp(host:port)/dbname
	MariaDSN      string `yaml:"maria_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	Enabled     bool `yaml:"enabled"`
	RESTPort    int  `yaml:"rest_port"`
	MetricsPort int  `yaml:"metrics_port"`
	// AdminSecret ключ HS256 для админских команд; пустой отключает их
	AdminSecret string `yaml:"admin_secret"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default конфигурация по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Seed:          42,
			SaveDir:       "data",
			Storage:       "file",
			AutosaveTicks: 600,
			PoolCapacity:  256,
		},
		Scheduling: SchedulingConfig{
			Strategy:       "max-throughput",
			BudgetCeiling:  250,
			BudgetRecovery: 25,
			BudgetFloor:    1,
			Workers:        4,
			TickMillis:     50,
		},
		Database: DatabaseConfig{
			RedisAddr:     "localhost:6379",
			RedisPrefix:   "chunk-engine:",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "chunk_engine",
		},
		EventBus: EventBusConfig{
			Stream:    "EVENTS",
			Retention: 24,
			Buffer:    1024,
		},
		Server: ServerConfig{
			Enabled: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chunk-engine",
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// GetRESTPort возвращает порт отладочного API с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "CHUNK_ENGINE_REST_PORT", 8088)
}

// GetMetricsPort возвращает порт Prometheus с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "CHUNK_ENGINE_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Validate проверяет значения, которые нельзя исправить молча
func (c *Config) Validate() error {
	switch c.World.Storage {
	case "file", "badger", "redis", "mongo", "none":
	case "mariadb":
		if c.Database.MariaDSN == "" {
			return fmt.Errorf("database.maria_dsn не задан для хранилища mariadb")
		}
	default:
		return fmt.Errorf("world.storage: неизвестное хранилище %q", c.World.Storage)
	}
	switch c.Scheduling.Strategy {
	case "max-throughput", "low-impact":
	default:
		return fmt.Errorf("scheduling.strategy: неизвестная стратегия %q", c.Scheduling.Strategy)
	}
	if c.Scheduling.BudgetFloor < 1 {
		return fmt.Errorf("scheduling.budget_floor должен быть не меньше 1")
	}
	if c.Scheduling.BudgetCeiling < c.Scheduling.BudgetFloor {
		return fmt.Errorf("scheduling.budget_ceiling (%d) меньше budget_floor (%d)",
			c.Scheduling.BudgetCeiling, c.Scheduling.BudgetFloor)
	}
	if c.Scheduling.BudgetRecovery < 0 {
		return fmt.Errorf("scheduling.budget_recovery не может быть отрицательным")
	}
	if c.Scheduling.Workers < 1 {
		return fmt.Errorf("scheduling.workers должен быть не меньше 1")
	}
	if (c.World.Storage == "file" || c.World.Storage == "badger") && c.World.SaveDir == "" {
		return fmt.Errorf("world.save_dir не задан")
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV CHUNK_ENGINE_CONFIG;
// без файла возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CHUNK_ENGINE_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
