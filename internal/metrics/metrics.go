// Package metrics Prometheus-метрики движка чанков. Все коллекторы
// регистрируются в собственном реестре, который отдаётся на /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chunk_engine"

// Metrics коллекторы движка
type Metrics struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	loads       *prometheus.CounterVec
	saves       *prometheus.CounterVec
	chunks      *prometheus.GaugeVec
	active      prometheus.Gauge
	listLen     prometheus.Gauge
	budget      prometheus.Gauge
	inFlight    prometheus.Gauge
	updates     *prometheus.CounterVec
	tick        prometheus.Histogram
}

// New создаёт реестр и регистрирует в нём метрики движка и процесса
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Переходы автомата чанков.",
		}, []string{"from", "to"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Попытки загрузки чанков по итогу.",
		}, []string{"result"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Попытки сохранения чанков.",
		}, []string{"status"}),
		chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks",
			Help:      "Чанки в памяти по состоянию.",
		}, []string{"state"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_active",
			Help:      "Активные чанки.",
		}),
		listLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_list_length",
			Help:      "Чанки, ожидающие шага автомата.",
		}),
		budget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_budget",
			Help:      "Бюджет стратегии low-impact (-1 для max-throughput).",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Фоновые задачи чанков в работе.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_updates_total",
			Help:      "Выполненные отложенные обновления блоков и жидкостей.",
		}, []string{"kind"}),
		tick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика мира.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}

	m.registry.MustRegister(
		m.transitions, m.loads, m.saves, m.chunks, m.active,
		m.listLen, m.budget, m.inFlight, m.updates, m.tick,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry реестр для дополнительных коллекторов (шина событий, HTTP)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler HTTP-обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveLoad(result string) {
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSave(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.saves.WithLabelValues(status).Inc()
}

// SetChunks число чанков в состоянии state
func (m *Metrics) SetChunks(state string, n int) {
	m.chunks.WithLabelValues(state).Set(float64(n))
}

func (m *Metrics) SetActive(n int) {
	m.active.Set(float64(n))
}

func (m *Metrics) SetListLen(n int) {
	m.listLen.Set(float64(n))
}

func (m *Metrics) SetBudget(n int) {
	m.budget.Set(float64(n))
}

func (m *Metrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}

// AddUpdates выполненные отложенные обновления вида kind (block, fluid)
func (m *Metrics) AddUpdates(kind string, n int) {
	if n > 0 {
		m.updates.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	m.tick.Observe(d.Seconds())
}
