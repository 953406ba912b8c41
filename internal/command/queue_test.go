package command

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VaXeS13/MP-sub002/internal/logger"
)

func init() {
	_ = logger.Init("", "error")
}

func enqueueN(t *testing.T, q *Queue, n int) []*Info {
	t.Helper()
	out := make([]*Info, 0, n)
	for i := 0; i < n; i++ {
		info, err := q.Enqueue(&Envelope{
			Header: Header{TenantID: "t1", AgentID: "a1"},
			Type:   "authorize_payment",
		})
		require.NoError(t, err)
		out = append(out, info)
	}
	return out
}

func TestEnqueueNil(t *testing.T) {
	q := NewQueue(time.Second, 3)
	_, err := q.Enqueue(nil)
	assert.ErrorIs(t, err, ErrNilCommand)
}

func TestEnqueueDefaults(t *testing.T) {
	q := NewQueue(45*time.Second, 2)
	info, err := q.Enqueue(&Envelope{
		Header:  Header{TenantID: "t1", AgentID: "a1"},
		Type:    "print_receipt",
		Payload: json.RawMessage(`{"total":"10.00"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, info.Status)
	assert.Equal(t, 45*time.Second, info.Timeout)
	assert.Equal(t, 2, info.MaxRetries)
	assert.Equal(t, "t1", info.TenantID)
	assert.NotEmpty(t, info.ID)
	assert.Nil(t, info.CompletedAt)
}

func TestDequeueFIFOAndProcessing(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got := q.Dequeue(ctx)
		require.NotNil(t, got)
		assert.Equal(t, cmds[i].ID, got.ID, "FIFO order violated at %d", i)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.NotNil(t, got.StartedAt)
	}
}

func TestDequeueReturnsNilOnCancel(t *testing.T) {
	q := NewQueue(time.Second, 3)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *Info, 1)
	go func() { done <- q.Dequeue(ctx) }()
	cancel()

	select {
	case got := <-done:
		assert.Nil(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not observe cancellation")
	}
}

func TestDequeueSkipsCancelledEntries(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 2)

	q.Cancel(cmds[0].ID)

	got := q.Dequeue(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, cmds[1].ID, got.ID)

	first, ok := q.Get(cmds[0].ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, first.Status)
	assert.NotNil(t, first.CompletedAt)
}

func TestStateMachineTerminalGuards(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 1)
	id := cmds[0].ID

	require.NotNil(t, q.Dequeue(context.Background()))
	require.NoError(t, q.UpdateStatus(id, StatusCompleted, []byte(`{"ok":true}`)))

	// same terminal state again: warned, ignored
	assert.NoError(t, q.UpdateStatus(id, StatusCompleted, nil))

	// a different terminal state: rejected
	err := q.UpdateStatus(id, StatusFailed, nil)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	got, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.JSONEq(t, `{"ok":true}`, string(got.Response))
}

func TestQueuedRejectsTerminalOutcomesExceptCancel(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 1)
	id := cmds[0].ID

	// terminal outcomes other than Cancelled come only from Processing
	for _, st := range []Status{StatusCompleted, StatusFailed, StatusTimedOut} {
		err := q.UpdateStatus(id, st, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition, "Queued -> %s must be refused", st)
	}
	got, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusQueued, got.Status)

	require.NoError(t, q.UpdateStatus(id, StatusCancelled, nil))
	got, _ = q.Get(id)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestCancelTerminalIsNoOp(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 1)
	id := cmds[0].ID
	require.NotNil(t, q.Dequeue(context.Background()))
	require.NoError(t, q.UpdateStatus(id, StatusFailed, nil))

	q.Cancel(id)
	got, _ := q.Get(id)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestCancelProcessingInvokesCancelFunc(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 1)
	got := q.Dequeue(context.Background())
	require.NotNil(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	q.RegisterCancel(cmds[0].ID, cancel)
	q.Cancel(cmds[0].ID)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cooperative cancellation was not requested")
	}
	// the in-flight dispatcher reports the terminal state
	require.NoError(t, q.UpdateStatus(cmds[0].ID, StatusCancelled, nil))
}

func TestTimedOutStatistics(t *testing.T) {
	q := NewQueue(time.Millisecond, 3)
	cmds := enqueueN(t, q, 3)

	// caller-driven expiry: the dispatcher races the device call against
	// the timeout and reports the outcome; the queue never self-expires.
	for range cmds {
		got := q.Dequeue(context.Background())
		require.NotNil(t, got)
		require.NoError(t, q.UpdateStatus(got.ID, StatusTimedOut, nil))
	}

	st := q.Statistics()
	assert.Equal(t, 3, st.TimedOutCommands)
	assert.Equal(t, 0, st.QueuedCommands)
	assert.Equal(t, 0, st.ProcessingCommands)
}

func TestStatisticsAveragesAndOldest(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 3)

	got := q.Dequeue(context.Background())
	require.NoError(t, q.UpdateStatus(got.ID, StatusCompleted, nil))

	st := q.Statistics()
	assert.Equal(t, 1, st.CompletedCommands)
	assert.Equal(t, 2, st.QueuedCommands)
	require.NotNil(t, st.OldestPendingQueuedAt)
	assert.True(t, !st.OldestPendingQueuedAt.After(cmds[1].QueuedAt))
}

func TestSweepRemovesOldTerminal(t *testing.T) {
	q := NewQueue(time.Second, 3)
	cmds := enqueueN(t, q, 2)

	got := q.Dequeue(context.Background())
	require.NoError(t, q.UpdateStatus(got.ID, StatusCompleted, nil))

	time.Sleep(20 * time.Millisecond)
	removed := q.Sweep(10 * time.Millisecond)
	assert.Equal(t, 1, removed)

	_, ok := q.Get(cmds[0].ID)
	assert.False(t, ok)
	// the pending command survives
	_, ok = q.Get(cmds[1].ID)
	assert.True(t, ok)
}

func TestNotificationsFireOnEveryTransition(t *testing.T) {
	q := NewQueue(time.Second, 3)
	events := q.Subscribe(8)

	cmds := enqueueN(t, q, 1)
	require.NotNil(t, q.Dequeue(context.Background()))
	require.NoError(t, q.UpdateStatus(cmds[0].ID, StatusCompleted, nil))

	want := []Status{StatusQueued, StatusProcessing, StatusCompleted}
	for _, expected := range want {
		select {
		case n := <-events:
			assert.Equal(t, expected, n.Current)
			assert.Equal(t, cmds[0].ID, n.CommandID)
		case <-time.After(time.Second):
			t.Fatalf("missing %s notification", expected)
		}
	}
}

func TestFullSubscriberNeverBlocksTransitions(t *testing.T) {
	q := NewQueue(time.Second, 3)
	_ = q.Subscribe(0) // never drained

	done := make(chan struct{})
	go func() {
		cmds := enqueueN(t, q, 5)
		for _, c := range cmds {
			got := q.Dequeue(context.Background())
			require.NotNil(t, got)
			require.NoError(t, q.UpdateStatus(c.ID, StatusCompleted, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transitions blocked on a full subscriber")
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q := NewQueue(time.Second, 3)
	const n = 50

	go func() {
		for i := 0; i < n; i++ {
			_, _ = q.Enqueue(&Envelope{Header: Header{TenantID: "t1"}, Type: "x"})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		got := q.Dequeue(ctx)
		require.NotNil(t, got)
		assert.False(t, seen[got.ID], "command dequeued twice")
		seen[got.ID] = true
	}
}
