// Package api отладочный HTTP-интерфейс движка чанков: состояние мира,
// сведения о чанках, статистика процесса, метрики Prometheus и
// административные команды под токеном оператора.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/chunk-engine/internal/auth"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/metrics"
	"github.com/annel0/chunk-engine/internal/middleware"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/annel0/chunk-engine/internal/world"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// StateSource источник снимков мира. Вызывается из горутин HTTP-сервера.
type StateSource interface {
	Snapshot() *world.Snapshot
}

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	source  StateSource
	metrics *ServerMetrics
	logger  *logging.Logger
	server  *http.Server

	signer    *auth.Signer
	commander WorldCommander
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port    string           // адрес для запуска сервера
	Source  StateSource      // снимки мира
	Metrics *metrics.Metrics // реестр для /metrics и HTTP-метрик
	Logger  *logging.Logger
	// Signer и Commander включают /api/admin; без любого из них маршруты не создаются
	Signer    *auth.Signer
	Commander WorldCommander
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetServerLogger()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("chunk_engine_api"))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	if config.Metrics != nil {
		promMw := middleware.NewPrometheusMiddleware("chunk_engine", config.Metrics.Registry())
		router.Use(promMw.Handler())
		router.GET("/metrics", gin.WrapH(config.Metrics.Handler()))
	}
	router.Use(corsMiddleware())

	rs := &RestServer{
		router:    router,
		source:    config.Source,
		metrics:   NewServerMetrics(),
		logger:    config.Logger,
		signer:    config.Signer,
		commander: config.Commander,
		server: &http.Server{
			Addr:              config.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/chunks", rs.handleChunks)
		api.GET("/chunks/:x/:y/:z", rs.handleChunk)
		api.GET("/stats", rs.handleStats)
	}
	rs.setupAdminRoutes()
}

// Handler HTTP-обработчик маршрутизатора
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ChunksResponse сводка по чанкам
type ChunksResponse struct {
	Tick        uint64         `json:"tick"`
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	ByState     map[string]int `json:"by_state"`
	ListLen     int            `json:"list_len"`
	Strategy    string         `json:"strategy"`
	Budget      int            `json:"budget"`
	InFlight    int64          `json:"in_flight"`
	Interactive bool           `json:"interactive"`
	Observers   []string       `json:"observers"`
	TickMillis  float64        `json:"tick_ms"`
}

// handleChunks возвращает сводку по состояниям чанков
func (rs *RestServer) handleChunks(c *gin.Context) {
	s := rs.source.Snapshot()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сводка по чанкам",
		Data: ChunksResponse{
			Tick:        s.Tick,
			Total:       s.Chunks,
			Active:      s.Active,
			ByState:     s.ByState,
			ListLen:     s.ListLen,
			Strategy:    s.Strategy,
			Budget:      s.Budget,
			InFlight:    s.InFlight,
			Interactive: s.Interactive,
			Observers:   s.Observers,
			TickMillis:  float64(s.TickTime.Microseconds()) / 1000,
		},
	})
}

// handleChunk возвращает состояние чанка по координатам
func (rs *RestServer) handleChunk(c *gin.Context) {
	pos, err := parsePosition(c.Param("x"), c.Param("y"), c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	info, ok := rs.source.Snapshot().Chunk(pos)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Чанк %v не загружен", pos),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк найден",
		Data:    info,
	})
}

func parsePosition(xs, ys, zs string) (vec.Vec3, error) {
	var p vec.Vec3
	for _, f := range []struct {
		name string
		raw  string
		dst  *int
	}{{"x", xs, &p.X}, {"y", ys, &p.Y}, {"z", zs, &p.Z}} {
		v, err := strconv.ParseInt(f.raw, 10, 32)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("неверная координата %s: %q", f.name, f.raw)
		}
		*f.dst = int(v)
	}
	return p, nil
}

// handleStats возвращает статистику процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()
	s := rs.source.Snapshot()

	stats := map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":      rs.metrics.GetUptime(),
			"memory_mb":   fmt.Sprintf("%.2f", memoryMB),
			"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
			"server_time": time.Now().Unix(),
		},
		"world": map[string]interface{}{
			"tick":   s.Tick,
			"chunks": s.Chunks,
			"active": s.Active,
		},
		"memory_details": rs.metrics.GetDetailedMemoryStats(),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 Отладочный API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("отладочный API: %w", err)
	}
	return nil
}

// Stop останавливает сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
