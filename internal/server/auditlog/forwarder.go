// Package auditlog ships audit entries from the gatekeeper to durable
// sinks without ever blocking the request path.
package auditlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgElephant/ramd/internal/logging"
	"github.com/pgElephant/ramd/internal/server/models"
)

const (
	defaultQueueSize     = 4096
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
	flushTimeout         = 10 * time.Second
)

type ForwarderOption func(*Forwarder)

func WithQueueSize(n int) ForwarderOption {
	return func(f *Forwarder) { f.queueSize = n }
}

func WithBatchSize(n int) ForwarderOption {
	return func(f *Forwarder) { f.batchSize = n }
}

func WithFlushInterval(d time.Duration) ForwarderOption {
	return func(f *Forwarder) { f.flushInterval = d }
}

// WithDropHook is called once for every entry dropped on a full queue.
func WithDropHook(hook func()) ForwarderOption {
	return func(f *Forwarder) { f.onDrop = hook }
}

// Forwarder buffers published entries in a bounded queue and writes them
// to a Sink in batches. When the queue is full new entries are dropped
// and counted; the in-memory trail still has them.
type Forwarder struct {
	sink          Sink
	logger        logging.Logger
	queueSize     int
	batchSize     int
	flushInterval time.Duration
	onDrop        func()

	mu      sync.RWMutex
	closed  bool
	queue   chan models.AuditEntry
	dropped atomic.Uint64
}

func NewForwarder(sink Sink, logger logging.Logger, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		sink:          sink,
		logger:        logger.With("module", "auditlog"),
		queueSize:     defaultQueueSize,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.queue = make(chan models.AuditEntry, f.queueSize)
	return f
}

// Publish enqueues e without blocking.
func (f *Forwarder) Publish(e models.AuditEntry) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		f.drop()
		return
	}
	select {
	case f.queue <- e:
	default:
		f.drop()
	}
}

func (f *Forwarder) drop() {
	f.dropped.Add(1)
	if f.onDrop != nil {
		f.onDrop()
	}
}

// Dropped returns the number of entries that never reached the sink queue.
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Close stops accepting entries. Run drains what is queued and returns.
func (f *Forwarder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.queue)
}

// Run writes batches until Close is called and the queue is drained.
// Cancelling ctx does not abandon queued entries; in-flight writes get
// flushTimeout each.
func (f *Forwarder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuditEntry, 0, f.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := f.sink.Write(wctx, batch); err != nil {
			f.logger.Error(ctx, "audit sink write failed", "entries", len(batch), "error", err.Error())
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-f.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= f.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
