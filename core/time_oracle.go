// Time Oracle: the single source of truth for the virtual clock blocks are
// timestamped against. Three independent knobs interact here — an
// optional fixed per-block interval (anvil_setBlockTimestampInterval), a
// one-shot override for the very next block (anvil_setNextBlockTimestamp),
// and the baseline +1-per-seal bump that keeps two empty blocks from
// sharing a timestamp. Resolution of how these combine is documented in
// DESIGN.md; in short: an active override wins outright for one block, an
// active interval replaces the baseline +1 (it does not stack with it),
// and with neither set every seal advances by exactly one second.
package core

import "sync"

type TimeOracle struct {
	mu       sync.Mutex
	now      int64
	interval int64 // 0 means unset
	override *int64
}

// NewTimeOracle starts the clock at the module-level genesis timestamp.
func NewTimeOracle() *TimeOracle {
	return &TimeOracle{now: genesisTimestamp}
}

// Now returns the current virtual timestamp without advancing it.
func (t *TimeOracle) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// SetInterval configures the fixed per-block advance used by sealed-on-
// submit block production. A zero value is rejected; use ClearInterval to
// return to the baseline +1 behavior.
func (t *TimeOracle) SetInterval(seconds int64) error {
	if seconds <= 0 {
		return NewError(KindEnvironment, "SetInterval", "interval must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = seconds
	return nil
}

// ClearInterval removes a configured interval, reverting to the baseline
// +1-per-seal advance.
func (t *TimeOracle) ClearInterval() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = 0
}

// SetNextTimestamp overrides the timestamp of the very next sealed block.
// The override must move the clock strictly forward and is consumed
// (cleared) the moment it is used.
func (t *TimeOracle) SetNextTimestamp(ts int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts <= t.now {
		return NewError(KindEnvironment, "SetNextTimestamp", "timestamp must exceed current virtual time")
	}
	t.override = &ts
	return nil
}

// Advance manually moves the clock forward by delta seconds, used by
// evm_increaseTime. It does not consume a pending override.
func (t *TimeOracle) Advance(delta int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now += delta
	return t.now
}

// SetTime forces the virtual clock to an absolute value, used by
// anvil_setTime/evm_setTime. Unlike SetNextTimestamp this takes effect
// immediately rather than waiting for the next seal.
func (t *TimeOracle) SetTime(ts int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = ts
	return t.now
}

// SealAdvance computes and applies the timestamp for the next sealed
// block, per the precedence documented above.
func (t *TimeOracle) SealAdvance() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.override != nil {
		t.now = *t.override
		t.override = nil
		return t.now
	}
	if t.interval > 0 {
		t.now += t.interval
		return t.now
	}
	t.now++
	return t.now
}

// IntervalBlockAdvance implements one block's timestamp within an
// anvil_mine(n, interval) batch: every block but the first advances by
// interval, and only the last block additionally takes the baseline +1.
// This is independent of any interval configured via SetInterval/
// ClearInterval, which governs sealed-on-submit production instead.
func (t *TimeOracle) IntervalBlockAdvance(isFirst, isLast bool, interval int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isFirst && interval > 0 {
		t.now += interval
	}
	if isLast {
		t.now++
	}
	return t.now
}

type timeSnapshot struct {
	now      int64
	interval int64
	override *int64
}

func (t *TimeOracle) snapshot() *timeSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ov *int64
	if t.override != nil {
		v := *t.override
		ov = &v
	}
	return &timeSnapshot{now: t.now, interval: t.interval, override: ov}
}

func (t *TimeOracle) restore(s *timeSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = s.now
	t.interval = s.interval
	t.override = s.override
}
