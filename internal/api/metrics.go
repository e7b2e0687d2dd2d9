package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics содержит метрики процесса для /health
type ServerMetrics struct {
	StartTime time.Time
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		StartTime: time.Now(),
	}
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

// GetMemoryUsage возвращает использование памяти в MB
func (sm *ServerMetrics) GetMemoryUsage() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		// Если не удалось получить метрику процесса, берём системную
		cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
		if err != nil || len(cpuPercents) == 0 {
			return 0, err
		}
		return cpuPercents[0], nil
	}
	return cpuPercent, nil
}

// HealthSnapshot ответ /health
type HealthSnapshot struct {
	Status     string  `json:"status"`
	Time       int64   `json:"time"`
	Uptime     string  `json:"uptime"`
	MemoryMB   float64 `json:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
	Markers    int     `json:"markers"`
	Rooms      int     `json:"rooms"`
}

// Snapshot собирает состояние процесса; ошибка CPU не делает сервер нездоровым
func (sm *ServerMetrics) Snapshot() HealthSnapshot {
	cpuPercent, _ := sm.GetCPUUsage()
	return HealthSnapshot{
		Status:     "ok",
		Time:       time.Now().Unix(),
		Uptime:     sm.GetUptime(),
		MemoryMB:   sm.GetMemoryUsage(),
		CPUPercent: cpuPercent,
		Goroutines: runtime.NumGoroutine(),
	}
}

// AnnotationMetrics Prometheus-метрики изменений аннотаций
type AnnotationMetrics struct {
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	size            *prometheus.GaugeVec
}

// NewAnnotationMetrics создаёт и регистрирует метрики в reg
func NewAnnotationMetrics(reg prometheus.Registerer) *AnnotationMetrics {
	am := &AnnotationMetrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maptools",
			Subsystem: "annotation",
			Name:      "mutations_total",
			Help:      "Изменения коллекций аннотаций.",
		}, []string{"collection", "kind"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maptools",
			Subsystem: "annotation",
			Name:      "persist_failures_total",
			Help:      "Изменения, применённые в памяти, но не записанные в хранилище.",
		}, []string{"collection"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "maptools",
			Subsystem: "annotation",
			Name:      "items",
			Help:      "Текущее количество элементов в коллекции.",
		}, []string{"collection"}),
	}
	reg.MustRegister(am.mutations, am.persistFailures, am.size)
	return am
}

// Observe подписывается на изменения хранилища и возвращает функцию отписки
func (am *AnnotationMetrics) Observe(store *annotation.Store) func() {
	am.setSizes(store)
	return store.Subscribe(func(c annotation.Change) {
		am.mutations.WithLabelValues(c.Collection, string(c.Kind)).Inc()
		am.setSizes(store)
	})
}

// PersistFailed учитывает ошибку записи
func (am *AnnotationMetrics) PersistFailed(collection string) {
	am.persistFailures.WithLabelValues(collection).Inc()
}

func (am *AnnotationMetrics) setSizes(store *annotation.Store) {
	am.size.WithLabelValues(annotation.CollectionMarkers).Set(float64(len(store.Markers())))
	am.size.WithLabelValues(annotation.CollectionRooms).Set(float64(len(store.Rooms())))
}
