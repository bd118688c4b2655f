// Package deadletter is the durable retry buffer for push events that
// failed delivery. It implements event.FailureSink so internal/event can
// hand it undeliverable durable events without importing internal/store
// itself.
//
// Entries are keyed by (source_session_id, event_type): repeated failures
// of the same event update the row in place and bump retry_count rather
// than fanning out duplicate rows. A background worker grounded on the
// ticker-driven goroutine shape of internal/vcs/watcher.go's run() loop
// wakes every 5 minutes, re-attempts delivery of pending rows, and marks an
// entry permanently_failed after 3 failed attempts.
package deadletter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

const maxRetries = 3

// Redeliverer re-attempts delivery of a previously failed event, returning
// an error if it still can't be delivered. cmd/clawd serve constructs its
// queue with a nil Redeliverer, so there the worker leaves pending entries
// as they are and never redelivers them.
type Redeliverer func(ctx context.Context, e *types.DeadLetterEntry) error

// Queue is the dead-letter queue.
type Queue struct {
	store   *store.Store
	deliver Redeliverer

	mu       sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a queue backed by st. deliver is called by the background
// worker for each pending row; pass nil to only accumulate entries without
// an automatic retry path (e.g. in tests).
func New(st *store.Store, deliver Redeliverer) *Queue {
	return &Queue{
		store:   st,
		deliver: deliver,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Failed implements event.FailureSink: called synchronously by the bus when
// a durable event finds no subscriber.
func (q *Queue) Failed(ev event.Event, reason string) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte(`{}`)
	}
	entry := &types.DeadLetterEntry{
		ID:              ulid.Make().String(),
		SourceSessionID: ev.SessionID,
		EventType:       string(ev.Name),
		Payload:         string(payload),
		FailureReason:   reason,
		RetryCount:      0,
		Status:          types.DeadLetterPending,
		LastAttemptAt:   time.Now().UnixMilli(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.store.UpsertDeadLetter(ctx, entry); err != nil {
		logging.Error().Err(err).Str("event", string(ev.Name)).Msg("deadletter: failed to persist entry")
	}
}

// Start launches the 5-minute retry worker.
func (q *Queue) Start() {
	go q.run()
}

func (q *Queue) run() {
	defer close(q.doneCh)
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.RetryPendingNow(context.Background())
		}
	}
}

// RetryPendingNow runs one retry pass immediately instead of waiting for the
// 5-minute ticker, for operator-triggered retry and tests.
func (q *Queue) RetryPendingNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	entries, err := q.store.ListPendingDeadLetters(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("deadletter: failed to list pending entries")
		return
	}

	for _, entry := range entries {
		q.retryOne(ctx, entry)
	}
}

func (q *Queue) retryOne(ctx context.Context, entry *types.DeadLetterEntry) {
	if q.deliver == nil {
		return
	}
	err := q.deliver(ctx, entry)
	entry.LastAttemptAt = time.Now().UnixMilli()
	if err == nil {
		if err := q.store.DeleteDeadLetter(ctx, entry.ID); err != nil {
			logging.Warn().Err(err).Str("id", entry.ID).Msg("deadletter: failed to remove delivered entry")
		}
		return
	}

	entry.RetryCount++
	entry.FailureReason = err.Error()
	if entry.RetryCount >= maxRetries {
		entry.Status = types.DeadLetterPermanentlyFailed
	}
	if err := q.store.UpsertDeadLetter(ctx, entry); err != nil {
		logging.Warn().Err(err).Str("id", entry.ID).Msg("deadletter: failed to record retry")
	}
}

// MarkForRetry resets a permanently_failed entry back to pending, for
// operator-triggered manual retry.
func (q *Queue) MarkForRetry(ctx context.Context, entry *types.DeadLetterEntry) error {
	entry.Status = types.DeadLetterPending
	entry.RetryCount = 0
	return q.store.UpsertDeadLetter(ctx, entry)
}

// Stop halts the background worker.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	<-q.doneCh
}
