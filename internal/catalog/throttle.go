package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"restock_bot/internal/model"
)

// Throttle serializes probes per external host and enforces a minimum
// spacing between them. Probes against different hosts do not block each
// other.
type Throttle struct {
	mu    sync.Mutex
	hosts map[string]*hostGate
	limit rate.Limit
}

type hostGate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewThrottle creates a Throttle with the given minimum delay between
// probes to one host. A non-positive delay disables spacing but keeps
// per-host serialization.
func NewThrottle(minDelay time.Duration) *Throttle {
	return &Throttle{
		hosts: make(map[string]*hostGate),
		limit: rate.Every(minDelay),
	}
}

// Acquire blocks until a probe against host may proceed, returning a
// release function the caller must invoke once the probe finishes.
func (t *Throttle) Acquire(ctx context.Context, host string) (func(), error) {
	gate := t.gate(host)
	gate.mu.Lock()
	if err := gate.limiter.Wait(ctx); err != nil {
		gate.mu.Unlock()
		return nil, err
	}
	return func() { gate.mu.Unlock() }, nil
}

func (t *Throttle) gate(host string) *hostGate {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.hosts[host]
	if !ok {
		g = &hostGate{limiter: rate.NewLimiter(t.limit, 1)}
		t.hosts[host] = g
	}
	return g
}

// Throttled wraps a Source so every probe passes through the throttle.
func Throttled(src Source, th *Throttle) Source {
	return &throttledSource{src: src, th: th}
}

type throttledSource struct {
	src Source
	th  *Throttle
}

func (s *throttledSource) Host(t model.Target) string {
	return s.src.Host(t)
}

func (s *throttledSource) Probe(ctx context.Context, t model.Target) (model.AvailabilityResult, error) {
	release, err := s.th.Acquire(ctx, s.src.Host(t))
	if err != nil {
		return model.AvailabilityResult{}, err
	}
	defer release()
	return s.src.Probe(ctx, t)
}
