package amqp

// demandCreditor is the on-demand credit engine for a receiver that isn't
// prefetching: rather than keeping a fixed target outstanding, it reasons
// directly about what the live waiter population wants and issues credit
// just in time. It keeps the same single-owner locking discipline as the
// rest of this core (guarded entirely by the receiver's mutex, no lock of
// its own).
//
// Two regimes, selected by whether every outstanding waiter wants exactly
// one message (the singleton regime, W == R) or the population is mixed
// (the multi regime, W != R). Singleton batches by the credit shortfall
// (need); multi batches by waiter count. Both regimes always let an issue
// through when currently-granted credit is zero, so a cold link never
// stalls waiting for a batch to fill.
type demandCreditor struct {
	granted        uint32 // C: credit this side currently believes is outstanding at the peer
	totalRequested uint32 // R: sum of each live waiter's still-unmet want
	waiterCount    int    // W: number of live waiters
}

const (
	// maxOD caps the absolute credit the singleton regime will ever grant,
	// so an unbounded run of one-at-a-time waiters can't claim an
	// unbounded share of peer resources.
	maxOD = 200

	// batchThreshold bounds how many singleton waiters accumulate before
	// the regime forces an issue, once the first batchThreshold waiters
	// have already been served without batching.
	batchThreshold = 20

	// pendingThreshold is the multi-regime analogue of batchThreshold,
	// gating on waiter count rather than on requested-message count.
	pendingThreshold = 20
)

func newDemandCreditor() *demandCreditor {
	return &demandCreditor{}
}

// onWaiterAdded records that a new waiter wants `want` more messages.
func (c *demandCreditor) onWaiterAdded(want uint32) {
	c.totalRequested += want
	c.waiterCount++
}

// onWaiterRemoved undoes onWaiterAdded for a waiter that left with `want`
// still unmet (cancelled, timed out below its minimum).
func (c *demandCreditor) onWaiterRemoved(want uint32) {
	if want <= c.totalRequested {
		c.totalRequested -= want
	} else {
		c.totalRequested = 0
	}
	if c.waiterCount > 0 {
		c.waiterCount--
	}
}

// onWaiterSatisfied records that a waiter left having received everything
// it asked for; its want was already driven to zero by onDelivered as each
// message arrived, so only the waiter count needs adjusting.
func (c *demandCreditor) onWaiterSatisfied() {
	if c.waiterCount > 0 {
		c.waiterCount--
	}
}

// onDelivered records that n messages were delivered, consuming both
// outstanding peer credit and unmet waiter demand.
func (c *demandCreditor) onDelivered(n uint32) {
	if n <= c.granted {
		c.granted -= n
	} else {
		c.granted = 0
	}
	if n <= c.totalRequested {
		c.totalRequested -= n
	} else {
		c.totalRequested = 0
	}
}

// nextCredit decides whether a flow frame is due, and if so how much
// incremental credit it should carry (the amount to hand to Link.IssueCredit,
// which tops up whatever is already outstanding rather than replacing it).
//
// Let C = granted, W = waiterCount, R = totalRequested.
//
//   - Singleton regime (W == R, every waiter wants exactly one message): if
//     W > C and C < maxOD, need = min(W, maxOD) - C; issue only if W <=
//     batchThreshold, or C == 0, or need is an exact multiple of
//     batchThreshold — otherwise hold and let more waiters accumulate.
//   - Multi regime (W != R): if R > C, need = R - C; issue only if W <=
//     pendingThreshold, or C == 0, or W is an exact multiple of
//     pendingThreshold.
func (c *demandCreditor) nextCredit() (newCredit uint32, issue bool) {
	if c.waiterCount == 0 {
		return 0, false
	}

	W := uint32(c.waiterCount)
	C := c.granted
	R := c.totalRequested

	if W == R {
		if W <= C || C >= maxOD {
			return 0, false
		}
		target := W
		if target > maxOD {
			target = maxOD
		}
		need := target - C
		if W <= batchThreshold || C == 0 || need%batchThreshold == 0 {
			c.granted = C + need
			return need, true
		}
		return 0, false
	}

	if R <= C {
		return 0, false
	}
	need := R - C
	if W <= pendingThreshold || C == 0 || W%pendingThreshold == 0 {
		c.granted = C + need
		return need, true
	}
	return 0, false
}

// reset clears all demand bookkeeping, used when the link closes.
func (c *demandCreditor) reset() {
	c.granted, c.totalRequested, c.waiterCount = 0, 0, 0
}
