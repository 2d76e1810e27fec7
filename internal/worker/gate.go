package worker

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrGateBusy is returned when the wait queue for an upstream slot is full.
var ErrGateBusy = errors.New("upstream gate busy")

const (
	defaultMaxCalls  = 8
	defaultQueueSize = 32
)

// Gate bounds concurrent upstream responder invocations. Turns beyond the
// in-flight limit wait in a bounded queue; once the queue is full further
// turns are rejected with ErrGateBusy instead of piling up.
type Gate struct {
	slots    chan struct{}
	waiting  int64
	maxQueue int64
}

// NewGate builds a gate allowing maxCalls concurrent holders and queueSize
// waiters. Non-positive arguments fall back to defaults.
func NewGate(maxCalls, queueSize int) *Gate {
	if maxCalls <= 0 {
		maxCalls = defaultMaxCalls
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Gate{
		slots:    make(chan struct{}, maxCalls),
		maxQueue: int64(queueSize),
	}
}

// Acquire claims an upstream slot, blocking while the queue has room.
// Returns ErrGateBusy when the queue is full, or the context error if the
// caller gives up first.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	default:
	}

	if atomic.AddInt64(&g.waiting, 1) > g.maxQueue {
		atomic.AddInt64(&g.waiting, -1)
		return ErrGateBusy
	}
	defer atomic.AddInt64(&g.waiting, -1)

	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot claimed by Acquire.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
	}
}
