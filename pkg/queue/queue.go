package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/corelink-proto/corelink-go/pkg/connection"
	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/transport"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// Queue defaults.
const (
	// DefaultMaxAttempts is the number of replay attempts per
	// operation within a single drain before it is left queued for the
	// next one.
	DefaultMaxAttempts = 3
)

// Queue errors.
var (
	// ErrInvalidOperation is returned for an enqueue with no endpoint.
	ErrInvalidOperation = errors.New("operation requires an endpoint")

	// ErrNilExecutor is returned when Drain is called without an
	// executor.
	ErrNilExecutor = errors.New("drain requires an executor")
)

// Executor replays one operation against the service and returns the
// authoritative server result. Transport failures are retried with
// backoff, an application status error is terminal for the operation,
// and any other error stops the drain with the operation still queued.
type Executor func(ctx context.Context, op PendingOperation) ([]byte, error)

// Config configures an offline queue.
type Config struct {
	// Store persists operations across restarts (default: in-memory).
	Store Store

	// MaxAttempts bounds replay attempts per operation per drain
	// (default: 3).
	MaxAttempts int

	// Backoff customizes the delay between replay attempts.
	Backoff connection.BackoffConfig

	// Clock abstracts time for tests (default: real time).
	Clock connection.Clock

	// OnReconcile receives the authoritative server result for a
	// completed operation. The server result replaces the local
	// optimistic projection unconditionally. Optional.
	OnReconcile func(op PendingOperation, serverResult []byte)

	// OnFailed receives operations that hit a terminal application
	// error. Optional.
	OnFailed func(op PendingOperation, err error)

	// Logger receives queue events. Optional.
	Logger log.Logger
}

// Queue is the durable offline operation queue. Operations are held in
// insertion order and drained FIFO per resource key.
type Queue struct {
	mu sync.Mutex

	ops     []*PendingOperation // insertion order
	byID    map[string]*PendingOperation
	nextSeq uint64

	draining bool

	store       Store
	maxAttempts int
	backoffCfg  connection.BackoffConfig
	clock       connection.Clock
	onReconcile func(op PendingOperation, serverResult []byte)
	onFailed    func(op PendingOperation, err error)
	logger      log.Logger
}

// New creates a queue and restores pending operations from the store.
// Records caught mid-replay by a crash are restored as queued.
func New(cfg Config) (*Queue, error) {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = connection.RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	restored, err := cfg.Store.Load()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		byID:        make(map[string]*PendingOperation),
		store:       cfg.Store,
		maxAttempts: cfg.MaxAttempts,
		backoffCfg:  cfg.Backoff,
		clock:       cfg.Clock,
		onReconcile: cfg.OnReconcile,
		onFailed:    cfg.OnFailed,
		logger:      logger,
	}

	for _, op := range restored {
		rec := op
		if rec.Status == StatusInFlight {
			rec.Status = StatusQueued
		}
		q.ops = append(q.ops, &rec)
		q.byID[rec.OperationID] = &rec
		if rec.Seq >= q.nextSeq {
			q.nextSeq = rec.Seq + 1
		}
	}
	return q, nil
}

// Enqueue persists the operation with a fresh operation ID, applies
// the caller's optimistic projection immediately, and returns without
// waiting for network confirmation. A persistence failure degrades the
// operation to in-memory durability; it does not fail the enqueue.
func (q *Queue) Enqueue(op Operation, projection func()) (PendingOperation, error) {
	if op.Endpoint == "" {
		return PendingOperation{}, ErrInvalidOperation
	}

	q.mu.Lock()
	rec := &PendingOperation{
		OperationID: uuid.NewString(),
		Method:      op.Method,
		Endpoint:    op.Endpoint,
		Payload:     op.Payload,
		ResourceKey: op.ResourceKey,
		CreatedAt:   q.clock.Now(),
		Status:      StatusQueued,
		Seq:         q.nextSeq,
	}
	q.nextSeq++
	q.ops = append(q.ops, rec)
	q.byID[rec.OperationID] = rec
	snapshot := *rec
	q.mu.Unlock()

	if err := q.store.Append(snapshot); err != nil {
		q.logger.Log(log.Event{
			Timestamp: q.clock.Now(),
			Category:  log.CategoryError,
			Endpoint:  snapshot.Endpoint,
			Error: &log.ErrorEvent{
				Op:      "queue.persist",
				Message: err.Error(),
			},
		})
	}

	if projection != nil {
		projection()
	}

	q.logQueueEvent(snapshot)
	return snapshot, nil
}

// Remove deletes an operation without replaying it. Cancelling an
// in-flight request does not remove its record; this is the explicit
// removal path.
func (q *Queue) Remove(operationID string) error {
	q.mu.Lock()
	rec, ok := q.byID[operationID]
	if !ok {
		q.mu.Unlock()
		return ErrOperationNotFound
	}
	q.removeLocked(rec)
	q.mu.Unlock()

	return q.store.Remove(operationID)
}

// Pending returns a snapshot of queued operations in insertion order.
func (q *Queue) Pending() []PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingOperation, 0, len(q.ops))
	for _, rec := range q.ops {
		out = append(out, *rec)
	}
	return out
}

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain replays pending operations strictly in FIFO insertion order
// per resource key. A transport failure retries the operation with
// backoff up to MaxAttempts, then leaves it and everything behind it
// on the same resource key queued for the next drain. A terminal
// application error marks the operation failed, surfaces it, and lets
// later operations on the key proceed. Any other executor error, such
// as a session or auth lapse, stops the drain with the operation still
// queued. Concurrent Drain calls after the first are no-ops.
func (q *Queue) Drain(ctx context.Context, exec Executor) error {
	if exec == nil {
		return ErrNilExecutor
	}

	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	pending := make([]*PendingOperation, len(q.ops))
	copy(pending, q.ops)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	backoff := connection.NewBackoffWithConfig(q.backoffCfg)
	blocked := make(map[string]bool)

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.mu.Lock()
		if _, live := q.byID[rec.OperationID]; !live || rec.Status != StatusQueued {
			q.mu.Unlock()
			continue
		}
		key := rec.ResourceKey
		q.mu.Unlock()

		if blocked[key] {
			continue
		}
		if err := q.drainOne(ctx, rec, exec, backoff, blocked); err != nil {
			return err
		}
	}
	return nil
}

// drainOne replays a single operation, retrying transport failures.
func (q *Queue) drainOne(ctx context.Context, rec *PendingOperation, exec Executor, backoff *connection.Backoff, blocked map[string]bool) error {
	for attempt := 0; attempt < q.maxAttempts; attempt++ {
		q.setStatus(rec, StatusInFlight)

		result, err := exec(ctx, *rec)
		if err == nil {
			q.complete(rec, result)
			backoff.Reset()
			return nil
		}
		if ctx.Err() != nil {
			q.setStatus(rec, StatusQueued)
			return ctx.Err()
		}

		if !transport.IsFailure(err) {
			var statusErr *wire.StatusError
			if errors.As(err, &statusErr) {
				q.fail(rec, err)
				return nil
			}
			// Session or auth lapse mid-drain. The operation stays
			// durable and Queued; the next drain retries it.
			q.setStatus(rec, StatusQueued)
			return err
		}

		// Transport failure: requeue with backoff
		q.mu.Lock()
		rec.Status = StatusQueued
		rec.RetryCount++
		snapshot := *rec
		q.mu.Unlock()
		q.persistUpdate(snapshot)

		delay := backoff.Next()
		q.logger.Log(log.Event{
			Timestamp: q.clock.Now(),
			Category:  log.CategoryRetry,
			Endpoint:  snapshot.Endpoint,
			Retry: &log.RetryEvent{
				Attempt: snapshot.RetryCount,
				Delay:   delay,
				Breaker: backoff.BreakerOpen(),
			},
		})

		if attempt+1 >= q.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.clock.After(delay):
		}
	}

	// Attempts exhausted; later operations on this key stay behind it.
	blocked[rec.ResourceKey] = true
	return nil
}

// complete finalizes a confirmed operation and reconciles the local
// projection with the server result.
func (q *Queue) complete(rec *PendingOperation, result []byte) {
	q.mu.Lock()
	rec.Status = StatusCompleted
	snapshot := *rec
	q.removeLocked(rec)
	q.mu.Unlock()

	if err := q.store.Remove(snapshot.OperationID); err != nil {
		q.logPersistError(snapshot, err)
	}
	if q.onReconcile != nil {
		q.onReconcile(snapshot, result)
	}
	q.logQueueEvent(snapshot)
}

// fail finalizes a terminally failed operation and surfaces it.
func (q *Queue) fail(rec *PendingOperation, cause error) {
	q.mu.Lock()
	rec.Status = StatusFailed
	snapshot := *rec
	q.removeLocked(rec)
	q.mu.Unlock()

	if err := q.store.Remove(snapshot.OperationID); err != nil {
		q.logPersistError(snapshot, err)
	}
	if q.onFailed != nil {
		q.onFailed(snapshot, cause)
	}
	q.logQueueEvent(snapshot)
}

// setStatus updates a record's status in memory and in the store.
func (q *Queue) setStatus(rec *PendingOperation, status Status) {
	q.mu.Lock()
	rec.Status = status
	snapshot := *rec
	q.mu.Unlock()
	q.persistUpdate(snapshot)
}

// persistUpdate writes a record update, tolerating records that never
// made it into the store.
func (q *Queue) persistUpdate(snapshot PendingOperation) {
	err := q.store.Update(snapshot)
	if err != nil && !errors.Is(err, ErrOperationNotFound) {
		q.logPersistError(snapshot, err)
	}
}

// removeLocked drops a record from the in-memory queue. Caller holds
// q.mu.
func (q *Queue) removeLocked(rec *PendingOperation) {
	delete(q.byID, rec.OperationID)
	for i, candidate := range q.ops {
		if candidate == rec {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return
		}
	}
}

func (q *Queue) logQueueEvent(snapshot PendingOperation) {
	q.logger.Log(log.Event{
		Timestamp: q.clock.Now(),
		Category:  log.CategoryQueue,
		Endpoint:  snapshot.Endpoint,
		Queue: &log.QueueEvent{
			OperationID: snapshot.OperationID,
			ResourceKey: snapshot.ResourceKey,
			Status:      snapshot.Status.String(),
			RetryCount:  snapshot.RetryCount,
		},
	})
}

func (q *Queue) logPersistError(snapshot PendingOperation, err error) {
	q.logger.Log(log.Event{
		Timestamp: q.clock.Now(),
		Category:  log.CategoryError,
		Endpoint:  snapshot.Endpoint,
		Error: &log.ErrorEvent{
			Op:      "queue.persist",
			Message: err.Error(),
		},
	})
}
