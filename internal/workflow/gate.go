package workflow

import (
	"context"
	"sync"

	"rematrix/internal/stage"
)

type gateKey struct {
	jobID string
	stage stage.Stage
}

// approvalGate wakes job runners parked at a human approval point. The
// persisted approval row is the source of truth; the channel is only a
// wakeup. Signals are buffered so a decision sent before the runner starts
// waiting is not lost.
type approvalGate struct {
	mu      sync.Mutex
	inboxes map[gateKey]chan struct{}
}

func newApprovalGate() *approvalGate {
	return &approvalGate{inboxes: make(map[gateKey]chan struct{})}
}

func (g *approvalGate) inbox(jobID string, stg stage.Stage) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := gateKey{jobID: jobID, stage: stg}
	ch, ok := g.inboxes[key]
	if !ok {
		ch = make(chan struct{}, 8)
		g.inboxes[key] = ch
	}
	return ch
}

// Signal notifies a waiting runner that a decision was persisted. Dropping
// the signal when the buffer is full is fine: the runner re-reads the row on
// every wakeup.
func (g *approvalGate) Signal(jobID string, stg stage.Stage) {
	select {
	case g.inbox(jobID, stg) <- struct{}{}:
	default:
	}
}

// Wait blocks until a decision signal arrives or the context ends.
func (g *approvalGate) Wait(ctx context.Context, jobID string, stg stage.Stage) error {
	select {
	case <-g.inbox(jobID, stg):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forget drops the inboxes for a finished job.
func (g *approvalGate) Forget(jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.inboxes {
		if key.jobID == jobID {
			delete(g.inboxes, key)
		}
	}
}
