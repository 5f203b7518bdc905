package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/ledger"
)

// Recorder appends audit events without ever failing the action that emitted
// them. A transient append failure sends the event to a bounded in-process
// retry queue; an event that exhausts its retries is persisted as a failure
// marker so it is not silently dropped.
type Recorder struct {
	chain  *ledger.Service[Payload]
	store  Store
	logger *zap.Logger

	queue      chan Payload
	maxRetries int
	retryDelay time.Duration
	onAppended func()
	onDropped  func()

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithRetry sets the retry budget and delay for queued events.
func WithRetry(maxRetries int, delay time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.maxRetries = maxRetries
		r.retryDelay = delay
	}
}

// WithQueueSize bounds the retry queue.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) { r.queue = make(chan Payload, n) }
}

// WithAppendedHook installs a callback invoked after every successful chain
// append, whether synchronous or from the retry queue (typically a metrics
// counter).
func WithAppendedHook(fn func()) RecorderOption {
	return func(r *Recorder) { r.onAppended = fn }
}

// WithDroppedHook installs a callback invoked whenever an event ends up in
// the failure marker store (typically a metrics counter).
func WithDroppedHook(fn func()) RecorderOption {
	return func(r *Recorder) { r.onDropped = fn }
}

// NewRecorder creates a Recorder and starts its retry worker.
func NewRecorder(chain *ledger.Service[Payload], store Store, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		chain:      chain,
		store:      store,
		logger:     logger,
		queue:      make(chan Payload, 256),
		maxRetries: 5,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.retryLoop()
	return r
}

// Emit records an audit event. It never returns an error: a failed append is
// queued for retry, and a full queue degrades straight to the persisted
// failure marker.
func (r *Recorder) Emit(ctx context.Context, category Category, level Level, description string, actor uuid.UUID) {
	p := Payload{
		Actor:       actor,
		Category:    category,
		Description: description,
		Level:       level,
		// timestamptz keeps microseconds; a finer OccurredAt would hash
		// differently after a round-trip through the store.
		OccurredAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := r.chain.Record(ctx, p)
	if err == nil {
		r.noteAppended()
		return
	}
	r.logger.Warn("audit append failed, queueing for retry",
		zap.String("category", string(category)),
		zap.Error(err),
	)

	select {
	case r.queue <- p:
	default:
		r.persistFailure(p, "retry queue full")
	}
}

// retryLoop drains the queue in the background. It uses its own context:
// the triggering request may be long gone by the time a retry runs.
func (r *Recorder) retryLoop() {
	defer r.wg.Done()
	for p := range r.queue {
		var lastErr error
		for attempt := 0; attempt < r.maxRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(r.retryDelay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, lastErr = r.chain.Record(ctx, p)
			cancel()
			if lastErr == nil {
				break
			}
		}
		if lastErr != nil {
			r.persistFailure(p, lastErr.Error())
		} else {
			r.noteAppended()
		}
	}
}

func (r *Recorder) noteAppended() {
	if r.onAppended != nil {
		r.onAppended()
	}
}

func (r *Recorder) persistFailure(p Payload, cause string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.RecordFailure(ctx, p, cause); err != nil {
		// Last resort: the marker itself could not be written.
		r.logger.Error("audit event lost",
			zap.String("category", string(p.Category)),
			zap.String("description", p.Description),
			zap.String("cause", cause),
			zap.Error(err),
		)
	} else {
		r.logger.Error("audit event diverted to failure marker",
			zap.String("category", string(p.Category)),
			zap.String("cause", cause),
		)
	}
	if r.onDropped != nil {
		r.onDropped()
	}
}

// List returns the actor's audit entries, most recent first.
func (r *Recorder) List(ctx context.Context, actor uuid.UUID, limit int) ([]*Entry, error) {
	return r.chain.ListByOwner(ctx, actor, limit)
}

// Audit verifies the whole audit chain.
func (r *Recorder) Audit(ctx context.Context) error {
	return r.chain.VerifyChain(ctx, 1, 0)
}

// Head returns the audit chain tip.
func (r *Recorder) Head(ctx context.Context) (*Entry, error) {
	return r.chain.Head(ctx)
}

// Close stops accepting retries and waits for the queue to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}
