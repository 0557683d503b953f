package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/fetcher/internal/infra/transport"
)

// SystemStatus is the aggregated health of the service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Pinger checks liveness of a backing store.
type Pinger interface {
	Health(ctx context.Context) error
}

// QueueLen reports the replay queue depth.
type QueueLen interface {
	Len(ctx context.Context) (int64, error)
}

// TransportHealth is one transport's view in the report.
type TransportHealth struct {
	Name           string        `json:"name"`
	Status         string        `json:"status"`
	AverageLatency time.Duration `json:"average_latency"`
	Failures       int           `json:"failures"`
	Throttles      int           `json:"throttles"`
}

// Report is a point-in-time health snapshot.
type Report struct {
	Status     SystemStatus      `json:"status"`
	Database   string            `json:"database,omitempty"`
	QueueDepth int64             `json:"queue_depth"`
	Transports []TransportHealth `json:"transports"`
}

// Monitor aggregates health from the transports and backing stores.
type Monitor struct {
	db       Pinger
	queue    QueueLen
	monitors map[string]*transport.Monitor

	mu         sync.RWMutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a new health monitor. db and queue may be nil when the
// service runs without them.
func NewMonitor(db Pinger, queue QueueLen, monitors map[string]*transport.Monitor) *Monitor {
	return &Monitor{
		db:       db,
		queue:    queue,
		monitors: monitors,
	}
}

// CheckHealth builds the current health report. Checks are rate limited to
// avoid hammering the backing stores.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Status != "" {
		return m.lastReport
	}

	report := Report{Status: StatusHealthy}

	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.Database = "unreachable"
			report.Status = StatusCritical
		} else {
			report.Database = "ok"
		}
	}

	if m.queue != nil {
		if depth, err := m.queue.Len(ctx); err == nil {
			report.QueueDepth = depth
		}
	}

	for name, mon := range m.monitors {
		stats := mon.GetStats()
		th := TransportHealth{
			Name:           name,
			Status:         stats.Status.String(),
			AverageLatency: stats.AverageLatency,
			Failures:       stats.FailureCount,
			Throttles:      stats.ThrottleCount,
		}
		report.Transports = append(report.Transports, th)

		if stats.Status != transport.StatusHealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report

	return report
}
