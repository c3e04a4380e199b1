package amqp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/example/amqp-receive-credit/internal/encoding"
	"github.com/example/amqp-receive-credit/internal/frames"
)

// fakeLink is a minimal in-memory stand-in for the link/session base,
// recording every call this core makes across it.
type fakeLink struct {
	mu sync.Mutex

	settings LinkSettings
	credit   uint32

	totalCreditCalls []uint32
	issueCreditCalls []uint32
	dispositions     []frames.PerformDisposition

	closing         bool
	disposeNotFound bool
}

func newFakeLink(mode encoding.ReceiverSettleMode) *fakeLink {
	return &fakeLink{settings: LinkSettings{ReceiverSettleMode: mode}}
}

func (f *fakeLink) SetTotalLinkCredit(credit uint32, drain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalCreditCalls = append(f.totalCreditCalls, credit)
	f.credit = credit
	return nil
}

func (f *fakeLink) IssueCredit(credit uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueCreditCalls = append(f.issueCreditCalls, credit)
	f.credit += credit
	return nil
}

func (f *fakeLink) DisposeDelivery(first uint32, last *uint32, settled bool, state encoding.DeliveryState, batchable bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposeNotFound {
		return false, nil
	}
	f.dispositions = append(f.dispositions, frames.PerformDisposition{
		First: first, Last: last, Settled: settled, State: state, Batchable: batchable,
	})
	return true, nil
}

func (f *fakeLink) LinkCredit() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credit
}

func (f *fakeLink) IsClosing() bool { return f.closing }

func (f *fakeLink) TerminalException() error { return nil }

func (f *fakeLink) Settings() LinkSettings { return f.settings }

func transferFor(deliveryID uint32, tag string, payload string) *frames.PerformTransfer {
	id := deliveryID
	return &frames.PerformTransfer{
		DeliveryID:  &id,
		DeliveryTag: []byte(tag),
		Payload:     []byte(payload),
	}
}

func TestReceiverOnDemandSingletonIssuesCreditImmediately(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	done := make(chan struct{})
	go func() {
		msgs, err := r.BeginReceive(context.Background(), 1, 1, 0, time.Second)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return link.LinkCredit() > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "hi")))
	<-done
}

func TestReceiverPrefetchCountAutoCredits(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	r.SetPrefetchCount(10)

	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "hi")))

	msgs, err := r.BeginReceive(context.Background(), 1, 1, 0, time.Second)
	require.NoError(t, err)

	want := []Message{{Tag: "t1", DeliveryID: 1, Data: []byte("hi")}}
	if diff := cmp.Diff(want, msgs, cmpopts.IgnoreFields(Message{}, "Batchable")); diff != "" {
		t.Fatalf("unexpected message batch (-want +got):\n%s", diff)
	}

	// SetPrefetchCount issued the target once; credit never fell to half.
	link.mu.Lock()
	defer link.mu.Unlock()
	require.Equal(t, []uint32{10}, link.totalCreditCalls)
}

func TestReceiverBatchGatherTimeoutReturnsPartial(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	resultCh := make(chan []Message, 1)
	errCh := make(chan error, 1)
	go func() {
		msgs, err := r.BeginReceive(context.Background(), 1, 5, 100*time.Millisecond, 2*time.Second)
		resultCh <- msgs
		errCh <- err
	}()

	require.Eventually(t, func() bool { return link.LinkCredit() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "one")))

	select {
	case msgs := <-resultCh:
		require.Len(t, msgs, 1)
		require.NoError(t, <-errCh)
	case <-time.After(2 * time.Second):
		t.Fatal("batch-gather timeout never resolved the waiter")
	}
}

func TestReceiverOverallTimeoutBelowMinFails(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	_, err := r.BeginReceive(context.Background(), 1, 1, 0, 20*time.Millisecond)
	require.Error(t, err)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestReceiverContextCancellationResolvesWaiter(t *testing.T) {
	defer leaktest.Check(t)()

	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.BeginReceive(ctx, 1, 1, 0, time.Hour)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
}

func TestReceiverRegisterListenerDispatchesArrivals(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	r.SetPrefetchCount(5)

	recv := make(chan Message, 1)
	require.NoError(t, r.RegisterListener(func(m Message) { recv <- m }))

	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "pushed")))

	select {
	case m := <-recv:
		require.Equal(t, "pushed", string(m.Data))
	case <-time.After(time.Second):
		t.Fatal("listener never received the message")
	}
}

func TestReceiverRegisterListenerDuplicateRejected(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	require.NoError(t, r.RegisterListener(func(m Message) {}))
	err := r.RegisterListener(func(m Message) {})
	require.ErrorIs(t, err, ErrDuplicateListener)
}

func TestReceiverBeginReceiveRejectedWhenListenerRegistered(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	require.NoError(t, r.RegisterListener(func(m Message) {}))

	_, err := r.BeginReceive(context.Background(), 1, 1, 0, time.Second)
	require.Error(t, err)
	var illegal *IllegalStateError
	require.ErrorAs(t, err, &illegal)
}

func TestReceiverAcceptMessageSendsDisposition(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)

	require.NoError(t, r.AcceptMessage(context.Background(), Message{DeliveryID: 5}))

	link.mu.Lock()
	defer link.mu.Unlock()
	require.Len(t, link.dispositions, 1)
	require.True(t, link.dispositions[0].Settled)
	_, ok := link.dispositions[0].State.(*encoding.StateAccepted)
	require.True(t, ok)
}

func TestReceiverAcceptMessageWaitsForPeerDispositionUnderModeSecond(t *testing.T) {
	link := newFakeLink(encoding.ModeSecond)
	r := NewReceiver(link)

	done := make(chan error, 1)
	msg := Message{DeliveryID: 9, Tag: "tag-9"}
	go func() { done <- r.AcceptMessage(context.Background(), msg) }()

	require.Eventually(t, func() bool {
		link.mu.Lock()
		defer link.mu.Unlock()
		return len(link.dispositions) == 1
	}, time.Second, time.Millisecond)

	r.OnDisposition(&frames.PerformDisposition{First: 9, State: &encoding.StateAccepted{}})

	require.NoError(t, <-done)
}

func TestReceiverCloseReleasesQueuedMessages(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	r.SetPrefetchCount(5)

	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "queued")))
	require.NoError(t, r.Close(context.Background()))

	link.mu.Lock()
	defer link.mu.Unlock()
	require.Len(t, link.dispositions, 1)
	_, ok := link.dispositions[0].State.(*encoding.StateReleased)
	require.True(t, ok)
}

func TestReceiverAbortDoesNotSendDispositions(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	r.SetPrefetchCount(5)

	require.NoError(t, r.OnTransfer(transferFor(1, "t1", "queued")))
	r.Abort(nil)

	link.mu.Lock()
	defer link.mu.Unlock()
	require.Empty(t, link.dispositions)
}

func TestReceiverOperationsAfterCloseReturnErrLinkClosed(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	r := NewReceiver(link)
	require.NoError(t, r.Close(context.Background()))

	_, err := r.BeginReceive(context.Background(), 1, 1, 0, time.Second)
	require.ErrorIs(t, err, ErrLinkClosed)
}

func TestReceiverAcceptMessageNotFoundDelivery(t *testing.T) {
	link := newFakeLink(encoding.ModeFirst)
	link.disposeNotFound = true
	r := NewReceiver(link)

	err := r.AcceptMessage(context.Background(), Message{DeliveryID: 5})
	require.Error(t, err)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}
