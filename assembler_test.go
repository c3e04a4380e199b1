package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/amqp-receive-credit/internal/frames"
)

func u32(v uint32) *uint32 { return &v }

func TestAssemblerSingleFrameDelivery(t *testing.T) {
	a := newAssembler(0)

	msg, done, err := a.addFrame(&frames.PerformTransfer{
		DeliveryID:  u32(1),
		DeliveryTag: []byte("tag"),
		More:        false,
		Payload:     []byte("hello"),
	})
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "hello", string(msg.Data))
	require.EqualValues(t, 1, msg.DeliveryID)
}

func TestAssemblerMultiFrameDelivery(t *testing.T) {
	a := newAssembler(0)

	_, done, err := a.addFrame(&frames.PerformTransfer{
		DeliveryID:  u32(2),
		DeliveryTag: []byte("tag"),
		More:        true,
		Payload:     []byte("hel"),
	})
	require.NoError(t, err)
	require.False(t, done)

	msg, done, err := a.addFrame(&frames.PerformTransfer{
		More:    false,
		Payload: []byte("lo"),
	})
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "hello", string(msg.Data))
}

func TestAssemblerMessageSizeExceededFatal(t *testing.T) {
	a := newAssembler(4)

	_, _, err := a.addFrame(&frames.PerformTransfer{
		DeliveryID:  u32(3),
		DeliveryTag: []byte("tag"),
		More:        false,
		Payload:     []byte("hello"),
	})
	require.Error(t, err)
	var sizeErr *MessageSizeExceededError
	require.ErrorAs(t, err, &sizeErr)
	require.False(t, a.inProgress)
}

func TestAssemblerMessageSizeExceededSuppressedWhileClosing(t *testing.T) {
	a := newAssembler(4)
	a.setClosing(true)

	msg, done, err := a.addFrame(&frames.PerformTransfer{
		DeliveryID:  u32(4),
		DeliveryTag: []byte("tag"),
		More:        false,
		Payload:     []byte("hello"),
	})
	require.NoError(t, err)
	require.False(t, done)
	require.Nil(t, msg)
}
