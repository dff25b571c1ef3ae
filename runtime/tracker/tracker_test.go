package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTracker_NotQuiescentBeforeAnyWork(t *testing.T) {
	tr := New()
	assert.False(t, tr.IsQuiescent())
	assert.False(t, tr.ShouldTerminate())
}

func TestNodeTracker_QuiescentAfterEnterLeaveAndCommit(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	tr.OnMessagesPublished(2)
	assert.False(t, tr.IsQuiescent())

	tr.Leave("node-a")
	assert.False(t, tr.IsQuiescent(), "messages still uncommitted")

	tr.OnMessagesCommitted(2)
	assert.True(t, tr.IsQuiescent())
	assert.True(t, tr.ShouldTerminate())
}

func TestNodeTracker_ReEntryClearsQuiescence(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	tr.OnMessagesPublished(1)
	tr.Leave("node-a")
	tr.OnMessagesCommitted(1)
	require.True(t, tr.IsQuiescent())

	tr.Enter("node-b")
	assert.False(t, tr.IsQuiescent())
}

func TestNodeTracker_ForceStopOverridesActivity(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	tr.ForceStop()
	assert.True(t, tr.ShouldTerminate())
	assert.False(t, tr.IsQuiescent())
}

func TestNodeTracker_WaitForQuiescenceUnblocksOnCommit(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	tr.OnMessagesPublished(1)

	done := make(chan bool, 1)
	go func() {
		done <- tr.WaitForQuiescence(context.Background(), 0)
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Leave("node-a")
	tr.OnMessagesCommitted(1)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForQuiescence did not unblock")
	}
}

func TestNodeTracker_WaitForQuiescenceTimesOut(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	ok := tr.WaitForQuiescence(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
}

func TestNodeTracker_ResetClearsState(t *testing.T) {
	tr := New()
	tr.Enter("node-a")
	tr.OnMessagesPublished(1)
	tr.Leave("node-a")
	tr.OnMessagesCommitted(1)
	require.True(t, tr.IsQuiescent())

	tr.Reset()
	assert.False(t, tr.IsQuiescent())
	snap := tr.Snapshot()
	assert.Empty(t, snap.ActiveNodes)
	assert.Zero(t, snap.TotalCommitted)
}
