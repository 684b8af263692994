package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics метрики процесса для /api/stats
type ServerMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	return formatUptime(time.Since(sm.StartTime))
}

func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetMemoryUsage возвращает резидентную память процесса в MB.
// Без доступа к процессу возвращает размер кучи Go.
func (sm *ServerMetrics) GetMemoryUsage() (float64, error) {
	if sm.proc != nil {
		if info, err := sm.proc.MemoryInfo(); err == nil {
			return float64(info.RSS) / 1024 / 1024, nil
		}
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024, nil
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if cpuPercent, err := sm.proc.CPUPercent(); err == nil {
			return cpuPercent, nil
		}
	}
	// Если не удалось получить метрику процесса, берём системную
	cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercents) == 0 {
		return 0, err
	}
	return cpuPercents[0], nil
}

// GetDetailedMemoryStats возвращает детальную статистику памяти
func (sm *ServerMetrics) GetDetailedMemoryStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"alloc_mb":      float64(m.Alloc) / 1024 / 1024,
		"sys_mb":        float64(m.Sys) / 1024 / 1024,
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"num_gc":        m.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
}
