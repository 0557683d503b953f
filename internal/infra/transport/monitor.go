package transport

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Status represents the health state of an endpoint client.
type Status int

const (
	StatusHealthy   Status = iota // working normally
	StatusDegraded                // slow but working
	StatusThrottled               // rate limited by the remote
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "healthy"
	}
}

// Stats holds monitoring statistics for a client.
type Stats struct {
	Status         Status
	AverageLatency time.Duration
	SuccessCount   int
	FailureCount   int
	ThrottleCount  int
	LastSuccessAt  time.Time
}

// Monitor tracks client health and remote rate limiting.
type Monitor struct {
	mu sync.RWMutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	successCount  int
	failureCount  int
	throttleCount int
	lastSuccessAt time.Time

	lastThrottleTime   time.Time
	retryAfterDuration time.Duration

	slowResponseThreshold time.Duration
}

// NewMonitor creates a new monitor with default settings.
func NewMonitor() *Monitor {
	return &Monitor{
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		slowResponseThreshold: 2 * time.Second,
	}
}

// RecordSuccess records a successful exchange.
func (m *Monitor) RecordSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successCount++
	m.lastSuccessAt = time.Now()
	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > m.maxLatencyWindow {
		m.recentLatencies = m.recentLatencies[1:]
	}
}

// RecordFailure records a failed exchange.
func (m *Monitor) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCount++
}

// RecordThrottle records a rate limit response with an optional Retry-After.
func (m *Monitor) RecordThrottle(statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusForbidden {
		m.throttleCount++
		m.lastThrottleTime = time.Now()
	}

	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			m.retryAfterDuration = time.Duration(seconds) * time.Second
		}
	}
}

// RetryAfter returns how long the remote asked us to back off.
func (m *Monitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retryAfterDuration
}

// CheckStatus returns the current health state.
func (m *Monitor) CheckStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Recent throttle wins
	if !m.lastThrottleTime.IsZero() && time.Since(m.lastThrottleTime) < 5*time.Minute {
		return StatusThrottled
	}

	if avg := m.averageLatencyLocked(); avg > m.slowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// GetStats returns a snapshot of the current statistics.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Status:         m.statusLocked(),
		AverageLatency: m.averageLatencyLocked(),
		SuccessCount:   m.successCount,
		FailureCount:   m.failureCount,
		ThrottleCount:  m.throttleCount,
		LastSuccessAt:  m.lastSuccessAt,
	}
}

func (m *Monitor) statusLocked() Status {
	if !m.lastThrottleTime.IsZero() && time.Since(m.lastThrottleTime) < 5*time.Minute {
		return StatusThrottled
	}
	if m.averageLatencyLocked() > m.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *Monitor) averageLatencyLocked() time.Duration {
	if len(m.recentLatencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range m.recentLatencies {
		total += l
	}
	return total / time.Duration(len(m.recentLatencies))
}
