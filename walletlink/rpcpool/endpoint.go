package rpcpool

import (
	"sync"
	"time"
)

// EndpointState represents the current state of an RPC endpoint
type EndpointState int

const (
	StateHealthy EndpointState = iota
	StateDegraded
	StateExcluded
)

func (s EndpointState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// Endpoint is one RPC URL with its client and rolling health data.
type Endpoint struct {
	URL string

	mu                  sync.RWMutex
	client              Client
	state               EndpointState
	excludedAt          time.Time
	lastUsed            time.Time
	totalRequests       uint64
	failedRequests      uint64
	consecutiveFailures int
	averageLatency      time.Duration
	lastErr             error
}

// NewEndpoint creates a healthy endpoint for url
func NewEndpoint(url string, client Client) *Endpoint {
	return &Endpoint{URL: url, client: client, state: StateHealthy}
}

// Client returns the endpoint's client
func (e *Endpoint) Client() Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client
}

// State returns the current state
func (e *Endpoint) State() EndpointState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Usable reports whether the endpoint may serve requests
func (e *Endpoint) Usable() bool {
	state := e.State()
	return state == StateHealthy || state == StateDegraded
}

func (e *Endpoint) setState(state EndpointState, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state == StateExcluded && e.state != StateExcluded {
		e.excludedAt = now
	}
	e.state = state
}

func (e *Endpoint) markUsed(now time.Time) {
	e.mu.Lock()
	e.lastUsed = now
	e.mu.Unlock()
}

// recordSuccess updates rolling metrics and returns the success rate.
func (e *Endpoint) recordSuccess(latency time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.consecutiveFailures = 0
	e.observeLatency(latency)
	return e.successRateLocked()
}

// recordFailure updates rolling metrics and returns the consecutive failure count.
func (e *Endpoint) recordFailure(err error, latency time.Duration) (int, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalRequests++
	e.failedRequests++
	e.consecutiveFailures++
	e.lastErr = err
	if latency > 0 && e.averageLatency > 0 {
		e.observeLatency(latency)
	}
	return e.consecutiveFailures, e.successRateLocked()
}

func (e *Endpoint) observeLatency(latency time.Duration) {
	if e.averageLatency == 0 {
		e.averageLatency = latency
		return
	}
	// exponential moving average, alpha = 0.1
	e.averageLatency = time.Duration(float64(e.averageLatency)*0.9 + float64(latency)*0.1)
}

func (e *Endpoint) successRateLocked() float64 {
	if e.totalRequests == 0 {
		return 1.0
	}
	return float64(e.totalRequests-e.failedRequests) / float64(e.totalRequests)
}

// resetMetrics clears history after a recovery probe.
func (e *Endpoint) resetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalRequests = 0
	e.failedRequests = 0
	e.consecutiveFailures = 0
	e.lastErr = nil
}

// HealthScore is 0-100 derived from success rate, latency and failure streak.
func (e *Endpoint) HealthScore() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	score := e.successRateLocked() * 100.0

	if e.averageLatency > time.Second {
		penalty := (e.averageLatency.Seconds() - 1.0) * 5.0
		if penalty > 20.0 {
			penalty = 20.0
		}
		score -= penalty
	}

	failurePenalty := float64(e.consecutiveFailures) * 10.0
	if failurePenalty > 50.0 {
		failurePenalty = 50.0
	}
	score -= failurePenalty

	if score < 0 {
		return 0
	}
	return score
}

// Status returns a snapshot for reporting
func (e *Endpoint) Status() EndpointStatus {
	score := e.HealthScore()

	e.mu.RLock()
	defer e.mu.RUnlock()

	status := EndpointStatus{
		URL:            e.URL,
		State:          e.state.String(),
		HealthScore:    score,
		AverageLatency: e.averageLatency.Milliseconds(),
		RequestCount:   e.totalRequests,
		FailureCount:   e.failedRequests,
		LastUsed:       e.lastUsed,
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	return status
}
