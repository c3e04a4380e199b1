package amqp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowQueueCountModeRefillsAtLowWatermark(t *testing.T) {
	f := newFlowQueue(CreditModeCount)
	f.setCountTarget(100)

	credit, issue := f.nextCredit(100)
	require.False(t, issue)
	require.Zero(t, credit)

	credit, issue = f.nextCredit(49)
	require.True(t, issue)
	require.EqualValues(t, 100, credit)
}

func TestFlowQueueCountModeClampsToMaxCreditPerFlow(t *testing.T) {
	f := newFlowQueue(CreditModeCount)
	f.setCountTarget(10000)
	require.EqualValues(t, maxCreditPerFlow, f.countTarget)
}

func TestFlowQueueSizeModeIssuesFromByteBudget(t *testing.T) {
	f := newFlowQueue(CreditModeSize)
	f.setByteBudget(1024 * 1024)
	f.avgMsgSize = 1024

	credit, issue := f.nextCredit(0)
	require.True(t, issue)
	// 1 MiB / 1 KiB = 1024, clamped to maxCreditPerFlow.
	require.EqualValues(t, 500, credit)
}

func TestFlowQueueSizeModeWithholdsAboveLowWatermark(t *testing.T) {
	f := newFlowQueue(CreditModeSize)
	f.setByteBudget(1000)
	f.avgMsgSize = 100

	// 6 outstanding credits * 100 bytes = 600, above the 500-byte low
	// watermark, so no refill yet.
	_, issue := f.nextCredit(6)
	require.False(t, issue)
}

func TestFlowQueueTracksOccupancyAndRunningAverage(t *testing.T) {
	f := newFlowQueue(CreditModeSize)

	f.enqueue(Message{Data: make([]byte, 800)})
	require.EqualValues(t, 1, f.len())
	require.EqualValues(t, 800, f.bytes())

	m, ok := f.dequeue()
	require.True(t, ok)
	require.Len(t, m.Data, 800)
	require.Zero(t, f.bytes())

	require.NotEqual(t, uint64(defaultAvgMessageSize), f.avgMsgSize)
}

func TestFlowQueueSaturatedAboveHighOverflow(t *testing.T) {
	f := newFlowQueue(CreditModeSize)
	f.setByteBudget(1000)
	f.avgMsgSize = 100

	require.False(t, f.saturated(8))
	require.True(t, f.saturated(10))
}
