package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// Allow returns ErrProviderUnavailable while the provider's breaker is open.
// A half-open trial admitted here stays taken until RecordSuccess or
// RecordFailure; callers that may abandon the call use Acquire.
func (r *Registry) Allow(providerID string) error {
	_, err := r.Acquire(providerID)
	return err
}

// Acquire is Allow with a release func that frees an abandoned half-open trial.
func (r *Registry) Acquire(providerID string) (func(), error) {
	r.mu.RLock()
	e, ok := r.entries[providerID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}

	release, allowed := e.breaker.Acquire()
	if !allowed {
		return nil, fmt.Errorf("provider %s circuit open: %w", providerID, domain.ErrProviderUnavailable)
	}
	return release, nil
}

// RecordSuccess marks a successful call: failures reset and the provider is
// connected again.
func (r *Registry) RecordSuccess(ctx context.Context, providerID string) {
	r.recordSuccess(ctx, providerID, true)
}

func (r *Registry) recordSuccess(ctx context.Context, providerID string, used bool) {
	r.mu.Lock()
	e, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	e.breaker.Success()
	e.provider.ConsecutiveFailures = 0
	e.provider.LastError = ""
	if used {
		e.provider.LastUsedAt = time.Now()
	}

	var pending []events.Payload
	if e.provider.HasCredential {
		pending = r.setStatusLocked(e, domain.StatusConnected, "")
	}
	r.mu.Unlock()

	r.publish(ctx, pending...)
}

// RecordFailure marks a failed call. A connected provider degrades; reaching
// the failure threshold puts it in error and, when it is the active provider
// and auto switching is on, fails over.
func (r *Registry) RecordFailure(ctx context.Context, providerID string, cause error) {
	r.mu.Lock()
	e, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	e.breaker.Failure()
	e.provider.ConsecutiveFailures++

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	e.provider.LastError = errMsg

	failures := e.provider.ConsecutiveFailures
	var pending []events.Payload
	switch {
	case failures >= r.cfg.FailureThreshold:
		pending = r.setStatusLocked(e, domain.StatusError, errMsg)
	case e.provider.Status == domain.StatusConnected:
		pending = r.setStatusLocked(e, domain.StatusDegraded, errMsg)
	}

	shouldSwitch := r.cfg.AutoSwitchOnError &&
		providerID == r.activeID &&
		failures >= r.cfg.FailureThreshold
	r.mu.Unlock()

	observability.FromContext(observability.WithProvider(ctx, providerID)).Warn("provider call failed",
		observability.Uint("consecutive_failures", failures),
		observability.Error(cause))

	r.publish(ctx, pending...)

	if shouldSwitch {
		// The outcome is reported through events.
		_, _ = r.AttemptAutoSwitch(ctx, providerID, "error-recovery")
	}
}

// CheckHealth probes every credentialed provider and records the outcome.
// Probe errors are never returned.
func (r *Registry) CheckHealth(ctx context.Context) {
	type target struct {
		id     string
		client domain.ProviderClient
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if e.provider.HasCredential && e.client != nil {
			targets = append(targets, target{id: id, client: e.client})
		}
	}
	r.mu.RUnlock()

	healthy := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}

		if err := t.client.Probe(ctx); err != nil {
			r.RecordFailure(ctx, t.id, err)
			continue
		}

		r.recordSuccess(ctx, t.id, false)
		healthy++
	}

	observability.FromContext(ctx).Debug("provider health checked",
		observability.Int("checked", len(targets)),
		observability.Int("healthy", healthy))

	r.publish(ctx, events.ProviderHealthCheckedPayload{
		Checked: len(targets),
		Healthy: healthy,
	})
}
