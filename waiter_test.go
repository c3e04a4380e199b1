package amqp

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestWaiterTryCompleteOnlyResolvesOnce(t *testing.T) {
	w := newWaiter(1, 1, 0)

	first := w.tryComplete(waiterResult{messages: []Message{{Tag: "a"}}})
	require.True(t, first)

	second := w.tryComplete(waiterResult{err: ErrLinkClosed})
	require.False(t, second)

	res := <-w.resultCh
	require.Len(t, res.messages, 1)
	require.NoError(t, res.err)
}

func TestWaiterOverallTimerStoppedOnCompletion(t *testing.T) {
	defer leaktest.Check(t)()

	w := newWaiter(1, 1, 0)
	w.overallTimer = time.AfterFunc(time.Hour, func() {})

	require.True(t, w.tryComplete(waiterResult{messages: []Message{{}}}))
	<-w.resultCh
}

func TestWaiterListFIFOOrderAndRemoval(t *testing.T) {
	l := newWaiterList()

	w1 := newWaiter(1, 1, 0)
	w2 := newWaiter(1, 1, 0)
	w3 := newWaiter(1, 1, 0)

	l.enqueue(w1)
	n2 := l.enqueue(w2)
	l.enqueue(w3)
	require.Equal(t, 3, l.len())

	l.remove(n2)
	require.Equal(t, 2, l.len())
	require.Same(t, w1, l.front())

	// removing twice is a no-op
	l.remove(n2)
	require.Equal(t, 2, l.len())
}

func TestWaiterListSnapshotAndClear(t *testing.T) {
	l := newWaiterList()
	l.enqueue(newWaiter(1, 1, 0))
	l.enqueue(newWaiter(1, 2, 0))

	snap := l.snapshotAndClear()
	require.Len(t, snap, 2)
	require.Zero(t, l.len())
	require.Nil(t, l.front())
}
