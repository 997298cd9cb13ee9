package core

import "testing"

func TestTimeOracleSealAdvanceBaselineIsOneSecond(t *testing.T) {
	tc := NewTimeOracle()
	start := tc.Now()
	next := tc.SealAdvance()
	if next != start+1 {
		t.Fatalf("SealAdvance = %d, want %d", next, start+1)
	}
}

func TestTimeOracleIntervalReplacesBaseline(t *testing.T) {
	tc := NewTimeOracle()
	if err := tc.SetInterval(10); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	start := tc.Now()
	next := tc.SealAdvance()
	if next != start+10 {
		t.Fatalf("SealAdvance with interval = %d, want %d (interval replaces baseline +1)", next, start+10)
	}
}

func TestTimeOracleOverrideWinsOnceThenClears(t *testing.T) {
	tc := NewTimeOracle()
	target := tc.Now() + 1000
	if err := tc.SetNextTimestamp(target); err != nil {
		t.Fatalf("SetNextTimestamp: %v", err)
	}
	if got := tc.SealAdvance(); got != target {
		t.Fatalf("SealAdvance = %d, want override %d", got, target)
	}
	// override is consumed: the next seal falls back to the baseline.
	if got := tc.SealAdvance(); got != target+1 {
		t.Fatalf("SealAdvance after override consumed = %d, want %d", got, target+1)
	}
}

func TestTimeOracleIntervalBlockAdvanceBatchSemantics(t *testing.T) {
	tc := NewTimeOracle()
	start := tc.Now()
	// first block in a 3-block batch: no interval bump, no baseline bump.
	got := tc.IntervalBlockAdvance(true, false, 5)
	if got != start {
		t.Fatalf("first block timestamp = %d, want unchanged %d", got, start)
	}
	// middle block: interval bump only.
	got = tc.IntervalBlockAdvance(false, false, 5)
	if got != start+5 {
		t.Fatalf("middle block timestamp = %d, want %d", got, start+5)
	}
	// last block: interval bump plus the baseline +1.
	got = tc.IntervalBlockAdvance(false, true, 5)
	if got != start+11 {
		t.Fatalf("last block timestamp = %d, want %d", got, start+11)
	}
}

func TestTimeOracleSetNextTimestampRejectsPast(t *testing.T) {
	tc := NewTimeOracle()
	if err := tc.SetNextTimestamp(tc.Now() - 1); err == nil {
		t.Fatal("expected an error for a timestamp not ahead of the current virtual time")
	}
}
