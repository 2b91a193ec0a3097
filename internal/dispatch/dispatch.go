// Package dispatch resolves a Classification to a backend endpoint, calls
// it within a bounded latency budget, and emits the resulting signal.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/registry"
	"github.com/blackroad-os/edge-router/internal/signalbus"
	"github.com/blackroad-os/edge-router/pkg/contracts"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// ConnectTimeout and TotalTimeout bound a single dispatch call per
// spec.md §4.3.
const (
	ConnectTimeout = 5 * time.Second
	TotalTimeout   = 30 * time.Second
)

// Dispatcher resolves endpoints and invokes them through a narrow
// OriginCaller capability, keeping statistics over its dispatch history.
type Dispatcher struct {
	registry *registry.Registry
	caller   contracts.OriginCaller
	bus      *signalbus.Bus
	audit    contracts.AuditStore

	mu               sync.Mutex
	total            int64
	successes        int64
	perOrg           map[string]int64
	perService       map[string]int64
	latencySumMs     int64
	latencyCount     int64
}

// New constructs a Dispatcher. caller is the narrow HTTP/RPC client
// capability; tests substitute a mock implementing contracts.OriginCaller.
// audit receives every dispatch signal (route.complete/route.failed),
// appended before the signal is published, per spec.md §8 Testable
// Property 5.
func New(reg *registry.Registry, caller contracts.OriginCaller, bus *signalbus.Bus, audit contracts.AuditStore) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		caller:     caller,
		bus:        bus,
		audit:      audit,
		perOrg:     make(map[string]int64),
		perService: make(map[string]int64),
	}
}

// Dispatch resolves an endpoint for c, calls it, and emits exactly one
// signal: route.complete on 2xx, route.failed otherwise (spec.md §4.3).
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, c models.Classification, payload []byte) models.DispatchResult {
	start := time.Now()

	endpoint, reason := d.resolveEndpoint(c)
	if endpoint == "" {
		return d.recordFailure(ctx, requestID, c, 0, 0, reason)
	}

	callCtx, cancel := context.WithTimeout(ctx, TotalTimeout)
	defer cancel()

	status, body, err := d.caller.Call(callCtx, endpoint, payload)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return d.recordFailure(ctx, requestID, c, status, latency, originFailureReason(err))
	}

	if status < 200 || status > 299 {
		return d.recordFailure(ctx, requestID, c, status, latency, fmt.Sprintf("origin_status_%d", status))
	}

	return d.recordSuccess(ctx, requestID, c, status, latency, body)
}

// resolveEndpoint implements the 3-level fallback from spec.md §4.3.
func (d *Dispatcher) resolveEndpoint(c models.Classification) (endpoint string, failureReason string) {
	snap := d.registry.Current()
	if snap == nil {
		return "", "no_service"
	}

	if c.Service != "" {
		if svc, ok := snap.Service(c.Org, c.Service); ok && svc.Endpoint != "" {
			return svc.Endpoint, ""
		}
	}

	if svc, ok := snap.DefaultService(c.Org); ok && svc.Endpoint != "" {
		return svc.Endpoint, ""
	}

	return "", "no_service"
}

func (d *Dispatcher) recordSuccess(ctx context.Context, requestID string, c models.Classification, status int, latencyMs int64, body []byte) models.DispatchResult {
	d.mu.Lock()
	d.total++
	d.successes++
	d.perOrg[c.Org]++
	d.perService[c.Org+"/"+c.Service]++
	d.latencySumMs += latencyMs
	d.latencyCount++
	d.mu.Unlock()

	sig := signalbus.New(models.SignalRouteComplete, c.Org, c.Service, time.Now().UnixMilli(), map[string]interface{}{
		"request_id": requestID,
		"status":     status,
		"latency_ms": latencyMs,
	})
	d.appendAudit(ctx, sig)
	d.bus.Publish(ctx, "dispatch", sig)

	return models.DispatchResult{
		RequestID:      requestID,
		Classification: c,
		Outcome:        models.DispatchSuccess,
		Status:         status,
		LatencyMs:      latencyMs,
		Body:           string(body),
		Signal:         sig,
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, requestID string, c models.Classification, status int, latencyMs int64, reason string) models.DispatchResult {
	d.mu.Lock()
	d.total++
	d.perOrg[c.Org]++
	if c.Service != "" {
		d.perService[c.Org+"/"+c.Service]++
	}
	d.mu.Unlock()

	sig := signalbus.New(models.SignalRouteFailed, c.Org, c.Service, time.Now().UnixMilli(), map[string]interface{}{
		"request_id": requestID,
		"status":     status,
		"reason":     reason,
	})
	d.appendAudit(ctx, sig)
	d.bus.Publish(ctx, "dispatch", sig)

	return models.DispatchResult{
		RequestID:      requestID,
		Classification: c,
		Outcome:        models.DispatchFailure,
		Status:         status,
		LatencyMs:      latencyMs,
		Reason:         reason,
		Signal:         sig,
	}
}

// appendAudit persists sig before it is published, so the HTTP response
// never returns ahead of the durable record (spec.md §8 Testable
// Property 5).
func (d *Dispatcher) appendAudit(ctx context.Context, sig models.Signal) {
	if d.audit == nil {
		return
	}
	if _, err := d.audit.Append(ctx, sig); err != nil {
		log.Error().Err(err).Str("signal_type", string(sig.Type)).Msg("dispatch: failed to append dispatch signal")
	}
}

func originFailureReason(err error) string {
	if err == context.DeadlineExceeded {
		return "origin_timeout"
	}
	return "origin_unreachable"
}

// Stats is a point-in-time view of the dispatcher's history, per spec.md
// §4.3: total count, success rate, per-org/service counts, average
// latency over successful dispatches.
type Stats struct {
	Total          int64
	SuccessRate    float64
	PerOrg         map[string]int64
	PerService     map[string]int64
	AvgLatencyMs   float64
}

// Stats computes the current statistics snapshot.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rate float64
	if d.total > 0 {
		rate = float64(d.successes) / float64(d.total)
	}
	var avgLatency float64
	if d.latencyCount > 0 {
		avgLatency = float64(d.latencySumMs) / float64(d.latencyCount)
	}

	perOrg := make(map[string]int64, len(d.perOrg))
	for k, v := range d.perOrg {
		perOrg[k] = v
	}
	perService := make(map[string]int64, len(d.perService))
	for k, v := range d.perService {
		perService[k] = v
	}

	return Stats{
		Total:        d.total,
		SuccessRate:  rate,
		PerOrg:       perOrg,
		PerService:   perService,
		AvgLatencyMs: avgLatency,
	}
}
