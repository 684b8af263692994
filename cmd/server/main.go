package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/chunk-engine/internal/api"
	"github.com/annel0/chunk-engine/internal/auth"
	"github.com/annel0/chunk-engine/internal/config"
	"github.com/annel0/chunk-engine/internal/eventbus"
	"github.com/annel0/chunk-engine/internal/generation"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/metrics"
	"github.com/annel0/chunk-engine/internal/observability"
	"github.com/annel0/chunk-engine/internal/storage"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/annel0/chunk-engine/internal/world"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML-конфигурации")
	observers := flag.Int("observers", 1, "число наблюдателей")
	walkTicks := flag.Int("walk-ticks", 200, "тиков между шагами наблюдателя по X (0 - стоять на месте)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.Loggers().Close()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	logging.Loggers().SetLevels(level, logging.DEBUG)

	logging.Info("🧱 Запуск chunk-engine: seed=%d, хранилище=%s", cfg.World.Seed, cfg.World.Storage)

	if err := run(cfg, *observers, *walkTicks); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config, observers, walkTicks int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Warn("OpenTelemetry не инициализирован: %v", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// === ХРАНИЛИЩЕ ===
	store, err := storage.Open(storage.Options{
		Backend: storage.Backend(cfg.World.Storage),
		Dir:     cfg.World.SaveDir,
		Redis: storage.RedisConfig{
			Addr:      cfg.Database.RedisAddr,
			Password:  cfg.Database.RedisPassword,
			DB:        cfg.Database.RedisDB,
			KeyPrefix: cfg.Database.RedisPrefix,
		},
		MariaDSN: cfg.Database.MariaDSN,
		Mongo: storage.MongoConfig{
			URI:      cfg.Database.MongoURI,
			Database: cfg.Database.MongoDatabase,
		},
	})
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	deps := world.Deps{
		Generator: generation.New(generation.DefaultConfig(cfg.World.Seed)),
		Logger:    logging.GetWorldLogger(),
	}
	if store != nil {
		defer store.Close()
		deps.Persistence = store
	}

	// === МЕТРИКИ И СОБЫТИЯ ===
	m := metrics.New()
	deps.Metrics = m

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()
	deps.Bus = bus

	exporter := eventbus.NewMetricsExporter(bus, m.Registry())
	exporter.Start()
	defer exporter.Stop()

	if sub, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger(logging.ComponentEventBus)); err != nil {
		logging.Warn("Подписка логгера событий: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	// === МИР ===
	w, err := world.New(cfg, deps)
	if err != nil {
		return err
	}
	defer w.Close()

	// === ОТЛАДОЧНЫЙ API ===
	var server *api.RestServer
	if cfg.Server.Enabled {
		gin.SetMode(gin.ReleaseMode)
		apiCfg := api.Config{
			Port:    fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
			Source:  w,
			Metrics: m,
			Logger:  logging.GetServerLogger(),
		}
		if cfg.Server.AdminSecret != "" {
			signer, err := auth.NewSigner(cfg.Server.AdminSecret)
			if err != nil {
				return fmt.Errorf("ключ админских команд: %w", err)
			}
			apiCfg.Signer = signer
			apiCfg.Commander = w
			logging.Info("🔑 Админские команды включены")
		}
		server = api.NewRestServer(apiCfg)
		go func() {
			if err := server.Start(); err != nil {
				logging.Error("❌ %v", err)
			}
		}()
	}

	loop(ctx, w, cfg, observers, walkTicks)

	if server != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			logging.Error("❌ Ошибка остановки API: %v", err)
		}
	}

	// Остановка: сохранить и выгрузить все чанки
	o := w.Owner()
	if err := w.Shutdown(o, 200000); err != nil {
		return fmt.Errorf("остановка мира: %w", err)
	}
	return nil
}

func openBus(cfg *config.Config) (eventbus.EventBus, error) {
	if cfg.EventBus.URL == "" {
		return eventbus.NewMemoryBus(cfg.EventBus.Buffer), nil
	}
	retention := time.Duration(cfg.EventBus.Retention) * time.Hour
	bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
	if err != nil {
		return nil, fmt.Errorf("подключение к JetStream %s: %w", cfg.EventBus.URL, err)
	}
	logging.Info("📨 События публикуются в JetStream %s (stream=%s)", cfg.EventBus.URL, cfg.EventBus.Stream)
	return bus, nil
}

// loop цикл-владелец: тики с фиксированным периодом до сигнала остановки.
// Пока стартовая область не загружена, работает без ограничения бюджета.
func loop(ctx context.Context, w *world.World, cfg *config.Config, observers, walkTicks int) {
	o := w.Owner()
	names := make([]string, 0, observers)
	positions := make([]vec.Vec3, 0, observers)
	for i := 0; i < observers; i++ {
		name := fmt.Sprintf("observer-%d", i)
		pos := vec.Vec3{Z: i * 16}
		if _, err := w.AddObserver(o, name, pos); err != nil {
			logging.Error("❌ %v", err)
			continue
		}
		names = append(names, name)
		positions = append(positions, pos)
	}

	ticker := time.NewTicker(time.Duration(cfg.Scheduling.TickMillis) * time.Millisecond)
	defer ticker.Stop()

	loaded := false
	for {
		select {
		case <-ctx.Done():
			logging.Info("📡 Получен сигнал завершения, тик %d", w.CurrentTick())
			return
		case <-ticker.C:
		}

		w.Tick(o)

		if !loaded && w.Container().IsIdle() {
			loaded = true
			logging.Info("✅ Стартовая область загружена за %d тиков: %d чанков, %d активных",
				w.CurrentTick(), w.Container().Count(), w.Container().ActiveCount())
			w.SetInteractive(o, true)
		}

		if walkTicks > 0 && loaded && w.CurrentTick()%uint64(walkTicks) == 0 {
			for i, name := range names {
				positions[i] = positions[i].Add(vec.Vec3{X: 1})
				if err := w.MoveObserver(o, name, positions[i]); err != nil {
					logging.Error("❌ %v", err)
				}
			}
		}
	}
}
