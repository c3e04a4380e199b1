package amqp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/amqp-receive-credit/internal/encoding"
)

func TestDispositionRegistryResolvesOnPeerDisposition(t *testing.T) {
	r := newDispositionRegistry()
	entry := r.startDisposition("tag-1", 7, 0, nil)

	r.onPeerDisposition(7, &encoding.StateAccepted{})

	err := <-entry.done
	require.NoError(t, err)
}

func TestDispositionRegistryUnwrapsTransactionalState(t *testing.T) {
	r := newDispositionRegistry()
	entry := r.startDisposition("tag-1", 7, 0, nil)

	r.onPeerDisposition(7, &encoding.StateTransactional{TxnID: []byte{1}, Outcome: &encoding.StateAccepted{}})

	err := <-entry.done
	require.NoError(t, err)
}

func TestDispositionRegistryIllegalStateWhenNoOutcome(t *testing.T) {
	r := newDispositionRegistry()
	entry := r.startDisposition("tag-1", 7, 0, nil)

	r.onPeerDisposition(7, &encoding.StateTransactional{TxnID: []byte{1}})

	err := <-entry.done
	require.Error(t, err)
	var illegal *IllegalStateError
	require.ErrorAs(t, err, &illegal)
}

func TestDispositionRegistryOnTimeout(t *testing.T) {
	r := newDispositionRegistry()
	entry := r.startDisposition("tag-1", 7, 0, nil)

	r.onTimeout("tag-1")

	err := <-entry.done
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestDispositionRegistryTimerFiresOnTimeout(t *testing.T) {
	r := newDispositionRegistry()
	fired := make(chan struct{})
	r.startDisposition("tag-1", 7, 10*time.Millisecond, func() {
		r.onTimeout("tag-1")
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
}

func TestDispositionRegistryAbortResolvesAllPending(t *testing.T) {
	r := newDispositionRegistry()
	e1 := r.startDisposition("tag-1", 1, 0, nil)
	e2 := r.startDisposition("tag-2", 2, 0, nil)

	r.abort(ErrLinkClosed)

	require.Equal(t, ErrLinkClosed, <-e1.done)
	require.Equal(t, ErrLinkClosed, <-e2.done)
}
