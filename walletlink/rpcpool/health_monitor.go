package rpcpool

import (
	"context"
	"sync"
	"time"
)

func (m *Manager) monitor(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	m.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopping: context cancelled")
			return
		case <-m.stopCh:
			m.logger.Info().Msg("health monitor stopping: stop signal received")
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll probes every endpoint concurrently
func (m *Manager) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ep := range m.endpoints {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			m.checkEndpoint(ctx, ep)
		}(ep)
	}
	wg.Wait()
}

func (m *Manager) checkEndpoint(ctx context.Context, ep *Endpoint) {
	client := ep.Client()
	if client == nil {
		return
	}

	if ep.State() == StateExcluded {
		ep.mu.RLock()
		excludedAt := ep.excludedAt
		ep.mu.RUnlock()
		if time.Since(excludedAt) < m.config.RecoveryInterval {
			return
		}
	}

	checkCtx := ctx
	if m.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, m.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	err := m.checker.CheckHealth(checkCtx, client)
	latency := time.Since(start)

	if ep.State() == StateExcluded {
		m.handleRecoveryProbe(ep, err)
		return
	}

	if err != nil {
		m.recordFailure(ep, err, latency)
		m.logger.Warn().
			Str("url", ep.URL).
			Dur("latency", latency).
			Err(err).
			Msg("endpoint health check failed")
		return
	}
	m.recordSuccess(ep, latency)
}

// handleRecoveryProbe promotes a recovered endpoint to degraded, or restarts its exclusion window.
func (m *Manager) handleRecoveryProbe(ep *Endpoint, err error) {
	if err != nil {
		ep.mu.Lock()
		ep.excludedAt = time.Now()
		ep.mu.Unlock()
		m.logger.Warn().Str("url", ep.URL).Err(err).Msg("endpoint recovery failed, extending exclusion period")
		return
	}

	ep.resetMetrics()
	ep.setState(StateDegraded, time.Now())
	m.logger.Info().Str("url", ep.URL).Msg("endpoint recovered, promoted to degraded state")
}
