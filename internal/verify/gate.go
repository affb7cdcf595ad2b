package verify

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// probeGate bounds outbound SMTP pressure: a global cap on concurrent
// sessions plus one-session-per-domain serialization so a single mail host
// never sees parallel probes from us.
type probeGate struct {
	global *semaphore.Weighted

	mu      sync.Mutex
	domains map[string]*domainLock
}

type domainLock struct {
	mu   sync.Mutex
	refs int
}

func newProbeGate(maxConcurrent int) *probeGate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &probeGate{
		global:  semaphore.NewWeighted(int64(maxConcurrent)),
		domains: make(map[string]*domainLock),
	}
}

// acquire blocks until both the global slot and the domain lock are held.
// The returned release function must be called exactly once.
func (g *probeGate) acquire(ctx context.Context, domain string) (release func(), err error) {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	g.mu.Lock()
	lock, ok := g.domains[domain]
	if !ok {
		lock = &domainLock{}
		g.domains[domain] = lock
	}
	lock.refs++
	g.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		g.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(g.domains, domain)
		}
		g.mu.Unlock()

		g.global.Release(1)
	}, nil
}
