package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/telemetry"
)

// Redactor masks sensitive values in a snapshot.
type Redactor interface {
	Map(m map[string]any) map[string]any
}

// Describer turns a (redacted) record into a one-sentence summary.
type Describer interface {
	Describe(ctx context.Context, rec Record) string
}

// WriterOptions sizes the asynchronous write path.
type WriterOptions struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Writer persists audit records. Write is synchronous; Enqueue hands the
// record to a worker pool and returns immediately.
type Writer struct {
	store     *Store
	redactor  Redactor
	describer Describer
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	wg     sync.WaitGroup
}

// NewWriter creates a Writer and starts its workers.
func NewWriter(store *Store, redactor Redactor, describer Describer, logger *zap.Logger, metrics *telemetry.Metrics, opts WriterOptions) *Writer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	w := &Writer{
		store:     store,
		redactor:  redactor,
		describer: describer,
		logger:    logger.Named("audit"),
		metrics:   metrics,
		timeout:   opts.WriteTimeout,
		queue:     make(chan Record, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		w.wg.Add(1)
		go w.work()
	}
	return w
}

// Write redacts the record, synthesizes its description and appends it to
// the store.
func (w *Writer) Write(ctx context.Context, rec Record) (*Entry, error) {
	rec.Before = w.redactor.Map(rec.Before)
	rec.After = w.redactor.Map(rec.After)

	e := &Entry{
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Status:       rec.Status,
		Description:  w.describer.Describe(ctx, rec),
	}
	if rec.UserID != "" {
		uid := rec.UserID
		e.UserID = &uid
	}
	if rec.ErrorMessage != "" {
		msg := rec.ErrorMessage
		e.ErrorMessage = &msg
	}
	if rec.Before != nil || rec.After != nil {
		e.Changes = &Changes{Before: rec.Before, After: rec.After}
	}
	meta := rec.Metadata
	e.Metadata = &meta

	if err := w.store.Insert(ctx, e); err != nil {
		w.metrics.AuditWriteFailures.Inc()
		return nil, fmt.Errorf("writing audit record: %w", err)
	}
	w.metrics.AuditRecords.WithLabelValues(string(e.Status)).Inc()
	return e, nil
}

// Enqueue schedules rec for an asynchronous write. It never blocks: when the
// queue is full or the writer is closed the record is dropped and false is
// returned.
func (w *Writer) Enqueue(rec Record) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.drop(rec, "writer closed")
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		w.drop(rec, "queue full")
		return false
	}
}

// Close stops accepting records and waits for queued ones to be written, or
// for ctx to expire.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining audit queue: %w", ctx.Err())
	}
}

func (w *Writer) work() {
	defer w.wg.Done()
	for rec := range w.queue {
		w.writeOne(rec)
	}
}

func (w *Writer) writeOne(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.AuditWriteFailures.Inc()
			w.logger.Error("audit write panicked",
				zap.Any("panic", r),
				zap.String("resource_type", rec.ResourceType),
				zap.String("resource_id", rec.ResourceID),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.Write(ctx, rec); err != nil {
		w.logger.Error("audit write failed",
			zap.Error(err),
			zap.String("action", string(rec.Action)),
			zap.String("resource_type", rec.ResourceType),
			zap.String("resource_id", rec.ResourceID),
		)
	}
}

func (w *Writer) drop(rec Record, reason string) {
	w.metrics.AuditDropped.Inc()
	w.logger.Warn("audit record dropped",
		zap.String("reason", reason),
		zap.String("action", string(rec.Action)),
		zap.String("resource_type", rec.ResourceType),
		zap.String("resource_id", rec.ResourceID),
	)
}
