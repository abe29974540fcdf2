package editlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/domain"
	"github.com/pscheid92/pixelwall/internal/platform/retry"
)

const (
	defaultThreshold     = 100
	defaultMaxPending    = 50
	defaultRetryInterval = 5 * time.Second
)

type Config struct {
	Threshold     int           // records per batch
	MaxPending    int           // full batches held while the store is failing
	RetryInterval time.Duration // pause between flush rounds after the store kept failing
	Retry         retry.Policy  // per-batch attempts within one round
}

type batch struct {
	seq     uint64
	records []domain.EditRecord
}

// Buffer accumulates edit records and hands full batches to a background flusher.
// A batch that cannot be persisted stays queued until the store accepts it, the
// queue overflows, or the store rejects it permanently.
type Buffer struct {
	store   domain.EditLogStore
	clock   clockwork.Clock
	cfg     Config
	metrics *metrics.EditLogMetrics

	mu      sync.Mutex
	records []domain.EditRecord
	pending []batch
	nextSeq uint64
	closed  bool

	notify    chan struct{}
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

var _ domain.EditLogger = (*Buffer)(nil)

// NewBuffer creates a buffer and starts its flusher goroutine. Call Close to stop it.
func NewBuffer(store domain.EditLogStore, cfg Config, clock clockwork.Clock, m *metrics.EditLogMetrics) *Buffer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
	}
	cfg.Retry.Clock = clock
	cfg.Retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Edit log append failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Buffer{
		store:   store,
		clock:   clock,
		cfg:     cfg,
		metrics: m,
		notify:  make(chan struct{}, 1),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	go b.run(ctx)
	return b
}

// Enqueue appends record. Whenever the buffer reaches the threshold, exactly
// threshold oldest records move to the pending queue as one batch.
func (b *Buffer) Enqueue(record domain.EditRecord) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Warn("Edit log closed, record discarded", "cell", record.Cell, "identity", record.Identity)
		b.recordDropped("shutdown", 1)
		return
	}

	b.records = append(b.records, record)
	cut := false
	for len(b.records) >= b.cfg.Threshold {
		b.cutBatchLocked(b.cfg.Threshold)
		cut = true
	}
	b.updateGaugesLocked()
	b.mu.Unlock()

	if cut {
		b.wake()
	}
}

// Len returns the number of records not yet cut into a batch.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Pending returns the number of batches waiting to be persisted.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close stops the flusher and makes a last attempt to persist every pending
// batch together with the partially filled buffer. It returns an error when
// records remain unpersisted after ctx expires or the store keeps failing.
func (b *Buffer) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		if len(b.records) > 0 {
			b.cutBatchLocked(len(b.records))
		}
		b.updateGaugesLocked()
		b.mu.Unlock()

		b.cancel()
		<-b.stopped

		if b.flushPending(ctx) {
			return
		}

		b.mu.Lock()
		lost := 0
		for _, p := range b.pending {
			lost += len(p.records)
		}
		b.pending = nil
		b.updateGaugesLocked()
		b.mu.Unlock()

		b.recordDropped("shutdown", lost)
		err = fmt.Errorf("edit log closed with %d unpersisted records", lost)
	})
	return err
}

func (b *Buffer) run(ctx context.Context) {
	defer close(b.stopped)

	var retryTimer clockwork.Timer
	var retryC <-chan time.Time
	defer func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
		case <-retryC:
		}

		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer, retryC = nil, nil
		}

		if !b.flushPending(ctx) && ctx.Err() == nil {
			retryTimer = b.clock.NewTimer(b.cfg.RetryInterval)
			retryC = retryTimer.Chan()
		}
	}
}

// flushPending persists queued batches oldest first. It reports whether the
// queue was drained; false means the head batch is still queued.
func (b *Buffer) flushPending(ctx context.Context) bool {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return true
		}
		head := b.pending[0]
		b.mu.Unlock()

		if ctx.Err() != nil {
			return false
		}

		err := b.persist(ctx, head)
		switch {
		case err == nil:
			b.remove(head.seq)
		case retry.IsPermanent(err):
			slog.Error("Edit log batch rejected by store, dropping", "records", len(head.records), "error", err)
			if b.remove(head.seq) {
				b.recordDropped("permanent", len(head.records))
			}
		default:
			slog.Warn("Edit log batch not persisted, keeping it queued",
				"records", len(head.records), "pending", b.Pending(), "error", err)
			return false
		}
	}
}

func (b *Buffer) persist(ctx context.Context, p batch) error {
	payload, err := EncodeBatch(p.records)
	if err != nil {
		return &retry.PermanentError{Err: err}
	}

	start := b.clock.Now()
	err = retry.DoVoid(ctx, b.cfg.Retry, classifyStoreError, func(ctx context.Context) error {
		return b.store.AppendBatch(ctx, payload)
	})

	if b.metrics != nil {
		if err != nil {
			b.metrics.FlushesTotal.WithLabelValues("error").Inc()
		} else {
			b.metrics.FlushesTotal.WithLabelValues("success").Inc()
			b.metrics.FlushDuration.Observe(b.clock.Since(start).Seconds())
		}
	}
	return err
}

func classifyStoreError(err error) retry.Action {
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		return retry.Retry
	case errors.Is(err, context.DeadlineExceeded):
		return retry.Retry
	case errors.Is(err, context.Canceled):
		// Caller is shutting down; Do returns on ctx and the batch stays queued.
		return retry.Retry
	default:
		return retry.Stop
	}
}

// remove deletes the batch with seq from the queue. It reports false when the
// batch was already evicted by an overflow.
func (b *Buffer) remove(seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, p := range b.pending {
		if p.seq == seq {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			b.updateGaugesLocked()
			return true
		}
	}
	return false
}

func (b *Buffer) cutBatchLocked(n int) {
	records := make([]domain.EditRecord, n)
	copy(records, b.records[:n])
	b.records = append(b.records[:0], b.records[n:]...)

	b.nextSeq++
	b.pending = append(b.pending, batch{seq: b.nextSeq, records: records})

	for len(b.pending) > b.cfg.MaxPending {
		dropped := b.pending[0]
		b.pending = b.pending[1:]
		slog.Error("Edit log pending queue full, dropping oldest batch",
			"records", len(dropped.records), "max_pending", b.cfg.MaxPending)
		b.recordDropped("overflow", len(dropped.records))
	}
}

func (b *Buffer) updateGaugesLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.BufferedRecords.Set(float64(len(b.records)))
	b.metrics.PendingBatches.Set(float64(len(b.pending)))
}

func (b *Buffer) recordDropped(reason string, n int) {
	if b.metrics != nil && n > 0 {
		b.metrics.DroppedRecordsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

func (b *Buffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
