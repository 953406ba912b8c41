package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

var (
	// ErrNilCommand is returned when Enqueue receives no envelope.
	ErrNilCommand = errors.New("command envelope is nil")
	// ErrUnknownCommand is returned for status updates on unknown ids.
	ErrUnknownCommand = errors.New("unknown command id")
	// ErrAlreadyTerminal is returned when a command in one terminal state
	// would be moved to a different one.
	ErrAlreadyTerminal = errors.New("command already in a terminal state")
	// ErrInvalidTransition is returned when a Queued command would reach a
	// terminal outcome without being dequeued. Only Cancelled may skip
	// Processing.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// repollInterval bounds how long a blocked Dequeue waits before re-checking
// the queue when no wakeup arrives.
const repollInterval = 100 * time.Millisecond

// Queue is a thread-safe FIFO of inbound commands with a per-command
// lifecycle state machine. Entries cancelled while waiting are skipped at
// dequeue rather than physically removed, so the FIFO index never races
// with status updates.
type Queue struct {
	defaultTimeout    time.Duration
	defaultMaxRetries int

	mu      sync.Mutex
	items   map[string]*Info
	fifo    []string
	cancels map[string]context.CancelFunc
	wake    chan struct{}

	subMu sync.Mutex
	subs  []chan Notification

	log zerolog.Logger
}

func NewQueue(defaultTimeout time.Duration, defaultMaxRetries int) *Queue {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Queue{
		defaultTimeout:    defaultTimeout,
		defaultMaxRetries: defaultMaxRetries,
		items:             make(map[string]*Info),
		cancels:           make(map[string]context.CancelFunc),
		wake:              make(chan struct{}, 1),
		log:               logger.With("command-queue"),
	}
}

// Enqueue admits a command, assigns its id and defaults, and wakes the
// worker.
func (q *Queue) Enqueue(env *Envelope) (*Info, error) {
	if env == nil {
		return nil, ErrNilCommand
	}
	info := &Info{
		ID:         uuid.NewString(),
		TenantID:   env.Header.TenantID,
		AgentID:    env.Header.AgentID,
		Type:       env.Type,
		Payload:    env.Payload,
		Status:     StatusQueued,
		QueuedAt:   time.Now(),
		Timeout:    env.Header.Timeout,
		MaxRetries: env.Header.MaxRetries,
	}
	if info.Timeout <= 0 {
		info.Timeout = q.defaultTimeout
	}
	if info.MaxRetries <= 0 {
		info.MaxRetries = q.defaultMaxRetries
	}

	q.mu.Lock()
	q.items[info.ID] = info
	q.fifo = append(q.fifo, info.ID)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.emit(Notification{CommandID: info.ID, Previous: "", Current: StatusQueued, At: info.QueuedAt})
	q.log.Debug().Str("id", info.ID).Str("type", info.Type).Msg("Command enqueued")
	return q.snapshot(info.ID), nil
}

// Dequeue blocks until a Queued command is available or ctx is done, in
// which case it returns nil. The returned command is already marked
// Processing.
func (q *Queue) Dequeue(ctx context.Context) *Info {
	for {
		if info := q.tryDequeue(); info != nil {
			return info
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
		case <-time.After(repollInterval):
		}
	}
}

func (q *Queue) tryDequeue() *Info {
	q.mu.Lock()
	var picked *Info
	consumed := 0
	for _, id := range q.fifo {
		info := q.items[id]
		consumed++
		if info == nil || info.Status != StatusQueued {
			// cancelled or swept while waiting; skip
			continue
		}
		now := time.Now()
		prev := info.Status
		info.Status = StatusProcessing
		info.StartedAt = &now
		picked = info
		q.emitLocked(Notification{CommandID: id, Previous: prev, Current: StatusProcessing, At: now})
		break
	}
	q.fifo = q.fifo[consumed:]
	var out *Info
	if picked != nil {
		cp := *picked
		out = &cp
	}
	q.mu.Unlock()
	return out
}

// RegisterCancel attaches the cooperative cancellation for an in-flight
// device call to its command id.
func (q *Queue) RegisterCancel(id string, cancel context.CancelFunc) {
	q.mu.Lock()
	q.cancels[id] = cancel
	q.mu.Unlock()
}

// Cancel moves a Queued command straight to Cancelled and requests
// cooperative cancellation for a Processing one. Cancelling a terminal
// command is a no-op.
func (q *Queue) Cancel(id string) {
	q.mu.Lock()
	info, ok := q.items[id]
	if !ok || info.Status.IsTerminal() {
		q.mu.Unlock()
		return
	}
	if info.Status == StatusProcessing {
		cancel := q.cancels[id]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	q.mu.Unlock()
	_ = q.UpdateStatus(id, StatusCancelled, nil)
}

// UpdateStatus applies a transition. A repeated transition to the same
// terminal state logs a warning and is ignored; a transition from one
// terminal state to a different one is rejected, as is any terminal outcome
// other than Cancelled on a command still Queued. Terminal transitions stamp
// CompletedAt and ProcessingDuration.
func (q *Queue) UpdateStatus(id string, status Status, response []byte) error {
	q.mu.Lock()
	info, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	prev := info.Status
	if prev.IsTerminal() {
		q.mu.Unlock()
		if prev == status {
			q.log.Warn().Str("id", id).Str("status", string(status)).Msg("Duplicate terminal transition ignored")
			return nil
		}
		return fmt.Errorf("%w: %s is already %s, refused %s", ErrAlreadyTerminal, id, prev, status)
	}
	if prev == StatusQueued && status.IsTerminal() && status != StatusCancelled {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s is still Queued, refused %s", ErrInvalidTransition, id, status)
	}

	info.Status = status
	if response != nil {
		info.Response = response
	}
	now := time.Now()
	if status.IsTerminal() {
		info.CompletedAt = &now
		if info.StartedAt != nil {
			info.ProcessingDuration = now.Sub(*info.StartedAt)
		}
		delete(q.cancels, id)
	}
	q.mu.Unlock()

	q.emit(Notification{CommandID: id, Previous: prev, Current: status, At: now})
	return nil
}

// Get returns a copy of the tracked command.
func (q *Queue) Get(id string) (*Info, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	info, ok := q.items[id]
	if !ok {
		return nil, false
	}
	cp := *info
	return &cp, true
}

func (q *Queue) snapshot(id string) *Info {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *q.items[id]
	return &cp
}

// Statistics returns counts by state, the oldest pending command's queue
// time, and the average processing duration across completed commands.
func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	var st Statistics
	var totalDur time.Duration
	for _, info := range q.items {
		switch info.Status {
		case StatusQueued:
			st.QueuedCommands++
			if st.OldestPendingQueuedAt == nil || info.QueuedAt.Before(*st.OldestPendingQueuedAt) {
				t := info.QueuedAt
				st.OldestPendingQueuedAt = &t
			}
		case StatusProcessing:
			st.ProcessingCommands++
		case StatusCompleted:
			st.CompletedCommands++
			totalDur += info.ProcessingDuration
		case StatusFailed:
			st.FailedCommands++
		case StatusTimedOut:
			st.TimedOutCommands++
		case StatusCancelled:
			st.CancelledCommands++
		}
	}
	if st.CompletedCommands > 0 {
		st.AverageProcessingDuration = totalDur / time.Duration(st.CompletedCommands)
	}
	return st
}

// Sweep removes terminal commands completed before now-olderThan and
// returns how many were dropped.
func (q *Queue) Sweep(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, info := range q.items {
		if info.Status.IsTerminal() && info.CompletedAt != nil && info.CompletedAt.Before(cutoff) {
			delete(q.items, id)
			removed++
		}
	}
	if removed > 0 {
		kept := q.fifo[:0]
		for _, id := range q.fifo {
			if _, ok := q.items[id]; ok {
				kept = append(kept, id)
			}
		}
		q.fifo = kept
		q.log.Info().Int("removed", removed).Msg("Swept terminal commands")
	}
	return removed
}

// Subscribe returns a channel receiving every status transition. Emission
// never blocks: a full subscriber buffer drops the notification.
func (q *Queue) Subscribe(buffer int) <-chan Notification {
	ch := make(chan Notification, buffer)
	q.subMu.Lock()
	q.subs = append(q.subs, ch)
	q.subMu.Unlock()
	return ch
}

func (q *Queue) emit(n Notification) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// emitLocked is emit for callers already holding q.mu; the subscriber list
// has its own lock so this is safe.
func (q *Queue) emitLocked(n Notification) { q.emit(n) }
