package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// permanentError marks a failure that another endpoint would reproduce.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Execute returns it at once without trying other
// endpoints or penalizing the current one.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Manager manages a pool of RPC endpoints with load balancing and health checking
type Manager struct {
	endpoints []*Endpoint
	selector  *selector
	config    Config
	checker   HealthChecker
	logger    zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates clients for every URL. Endpoints whose client cannot be
// built are skipped; fewer than MinHealthyEndpoints remaining is an error.
func NewManager(urls []string, cfg Config, factory ClientFactory, checker HealthChecker, logger zerolog.Logger) (*Manager, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 3
	}
	if cfg.MinHealthyEndpoints <= 0 {
		cfg.MinHealthyEndpoints = 1
	}

	log := logger.With().Str("component", "rpc_pool").Logger()

	endpoints := make([]*Endpoint, 0, len(urls))
	for _, url := range urls {
		client, err := factory(url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to create client, skipping endpoint")
			continue
		}
		endpoints = append(endpoints, NewEndpoint(url, client))
	}

	if len(endpoints) < cfg.MinHealthyEndpoints {
		return nil, fmt.Errorf("insufficient healthy endpoints: %d/%d (minimum: %d)",
			len(endpoints), len(urls), cfg.MinHealthyEndpoints)
	}

	return &Manager{
		endpoints: endpoints,
		selector:  newSelector(cfg.Strategy),
		config:    cfg,
		checker:   checker,
		logger:    log,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the health monitor when a checker and interval are configured.
func (m *Manager) Start(ctx context.Context) {
	if m.checker == nil || m.config.HealthCheckInterval <= 0 {
		return
	}

	m.logger.Info().
		Int("endpoint_count", len(m.endpoints)).
		Str("strategy", string(m.selector.strategy)).
		Dur("interval", m.config.HealthCheckInterval).
		Msg("starting RPC pool health monitor")

	m.wg.Add(1)
	go m.monitor(ctx)
}

// Stop stops health monitoring and closes every client.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()

		for _, ep := range m.endpoints {
			if client := ep.Client(); client != nil {
				if err := client.Close(); err != nil {
					m.logger.Warn().Str("url", ep.URL).Err(err).Msg("failed to close client connection")
				}
			}
		}
		m.logger.Info().Msg("RPC pool stopped")
	})
}

// Execute runs fn against usable endpoints until one succeeds. Each endpoint is
// tried at most once per call.
func (m *Manager) Execute(ctx context.Context, operation string, fn func(Client) error) error {
	usable := m.usableEndpoints()
	if len(usable) == 0 {
		return fmt.Errorf("no healthy endpoints available for %s", operation)
	}

	tried := make(map[*Endpoint]bool, len(usable))
	var lastErr error
	for len(tried) < len(usable) {
		if err := ctx.Err(); err != nil {
			return err
		}

		ep := m.selector.pick(usable)
		if tried[ep] {
			ep = firstUntried(usable, tried)
		}
		tried[ep] = true
		ep.markUsed(time.Now())

		start := time.Now()
		err := fn(ep.Client())
		latency := time.Since(start)

		if err == nil {
			m.recordSuccess(ep, latency)
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}

		m.recordFailure(ep, err, latency)
		lastErr = err
		m.logger.Warn().
			Str("operation", operation).
			Str("url", ep.URL).
			Int("attempt", len(tried)).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return fmt.Errorf("operation %s failed after trying %d endpoints: %w", operation, len(tried), lastErr)
}

func firstUntried(endpoints []*Endpoint, tried map[*Endpoint]bool) *Endpoint {
	for _, ep := range endpoints {
		if !tried[ep] {
			return ep
		}
	}
	return endpoints[0]
}

func (m *Manager) usableEndpoints() []*Endpoint {
	usable := make([]*Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		if ep.Usable() {
			usable = append(usable, ep)
		}
	}
	return usable
}

func (m *Manager) recordSuccess(ep *Endpoint, latency time.Duration) {
	rate := ep.recordSuccess(latency)
	if ep.State() == StateDegraded && rate > 0.8 {
		ep.setState(StateHealthy, time.Now())
		m.logger.Info().Str("url", ep.URL).Float64("success_rate", rate).Msg("endpoint promoted to healthy")
	}
}

func (m *Manager) recordFailure(ep *Endpoint, err error, latency time.Duration) {
	streak, rate := ep.recordFailure(err, latency)
	switch {
	case streak >= m.config.UnhealthyThreshold:
		if ep.State() != StateExcluded {
			ep.setState(StateExcluded, time.Now())
			m.logger.Warn().
				Str("url", ep.URL).
				Int("consecutive_failures", streak).
				Err(err).
				Msg("endpoint excluded due to consecutive failures")
		}
	case rate < 0.5 && ep.State() == StateHealthy:
		ep.setState(StateDegraded, time.Now())
		m.logger.Warn().Str("url", ep.URL).Float64("success_rate", rate).Msg("endpoint downgraded to degraded")
	}
}

// HealthyCount returns the number of usable endpoints
func (m *Manager) HealthyCount() int {
	return len(m.usableEndpoints())
}

// Status returns a summary of endpoint health
func (m *Manager) Status() *HealthStatus {
	status := &HealthStatus{
		TotalEndpoints: len(m.endpoints),
		Strategy:       string(m.selector.strategy),
		Endpoints:      make([]EndpointStatus, 0, len(m.endpoints)),
	}
	for _, ep := range m.endpoints {
		switch ep.State() {
		case StateHealthy:
			status.HealthyCount++
		case StateDegraded:
			status.DegradedCount++
		case StateExcluded:
			status.ExcludedCount++
		}
		status.Endpoints = append(status.Endpoints, ep.Status())
	}
	return status
}
