package forwardqueue

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Job is one queued relay: data addressed to dst, originating at src.
type Job struct {
	Src  string
	Dst  string
	Data []byte
}

// StubResolver looks up the peer stub for a destination node id and
// reports whether it was found and currently connected.
type StubResolver func(dst string) (send func(ctx context.Context, src, dst string, data []byte) error, connected bool, ok bool)

// Queue is the portal-only ForwardingQueue: a bounded channel-backed
// FIFO with a single worker goroutine popping with a 100ms timeout,
// matching spec.md §4.6 exactly.
type Queue struct {
	jobs     chan Job
	stopCh   chan struct{}
	resolver StubResolver
	log      *zap.SugaredLogger
}

// New builds a queue with the given capacity. resolver is called once
// per popped job to find where to send it.
func New(capacity int, resolver StubResolver, log *zap.SugaredLogger) *Queue {
	return &Queue{
		jobs:     make(chan Job, capacity),
		stopCh:   make(chan struct{}),
		resolver: resolver,
		log:      log,
	}
}

// Enqueue attempts a non-blocking send onto the queue. It returns
// false (and logs) if the queue is full or has been stopped.
func (q *Queue) Enqueue(src, dst string, data []byte) bool {
	select {
	case <-q.stopCh:
		q.log.Warnw("forwardqueue: enqueue after stop, dropping", "dst", dst)
		return false
	default:
	}

	select {
	case q.jobs <- Job{Src: src, Dst: dst, Data: data}:
		return true
	default:
		q.log.Warnw("forwardqueue: queue full, dropping message", "dst", dst)
		return false
	}
}

// Run drives the single worker loop until Stop is called. It is
// meant to be run in its own goroutine.
func (q *Queue) Run() {
	for {
		select {
		case <-q.stopCh:
			return
		case job := <-q.jobs:
			q.process(job)
		case <-time.After(100 * time.Millisecond):
			// no job ready; loop back around to re-check stop.
		}
	}
}

func (q *Queue) process(job Job) {
	send, connected, ok := q.resolver(job.Dst)
	if !ok {
		q.log.Warnw("forwardqueue: cannot forward, unknown peer", "dst", job.Dst)
		return
	}
	if !connected {
		q.log.Warnw("forwardqueue: cannot forward, peer not connected", "dst", job.Dst)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := send(ctx, job.Src, job.Dst, job.Data); err != nil {
		preview := job.Data
		if len(preview) > 16 {
			preview = preview[:16]
		}
		q.log.Warnw("forwardqueue: send failed", "dst", job.Dst, "error", err, "preview_hex", hex.EncodeToString(preview))
	}
}

// Stop signals the worker to exit after its current pop completes.
func (q *Queue) Stop() {
	close(q.stopCh)
}
