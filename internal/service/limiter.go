package service

import "golang.org/x/sync/semaphore"

// ConcurrencyLimiter caps how many jobs run at once. Admission never blocks:
// a full limiter rejects immediately so the caller can surface the rejection
// to the client.
type ConcurrencyLimiter struct {
	sem *semaphore.Weighted
}

// NewConcurrencyLimiter creates a limiter with the given slot count.
func NewConcurrencyLimiter(maxConcurrent int) *ConcurrencyLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// TryAcquire claims a slot without blocking. Returns false when all slots
// are taken.
func (l *ConcurrencyLimiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release returns a slot. Callers must pair every successful TryAcquire with
// exactly one Release.
func (l *ConcurrencyLimiter) Release() {
	l.sem.Release(1)
}
