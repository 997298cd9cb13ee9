package core

import (
	"testing"

	"github.com/holiman/uint256"
)

func newTestSnapshotManager(t *testing.T) (*SnapshotManager, *StateStore) {
	t.Helper()
	s := newTestStore(t)
	idx := NewChainIndex()
	pool := NewMempool(s)
	clock := NewTimeOracle()
	fees := NewFeeOracle(1_000_000_000, 30_000_000)
	return NewSnapshotManager(s, idx, pool, clock, fees), s
}

func TestSnapshotRevertRestoresBalance(t *testing.T) {
	snaps, store := newTestSnapshotManager(t)
	addr := Address{1}
	store.SetBalance(addr, uint256.NewInt(10))

	id := snaps.Snapshot()
	store.SetBalance(addr, uint256.NewInt(999))

	if !snaps.Revert(id) {
		t.Fatal("Revert returned false for a freshly taken snapshot")
	}
	if got := store.GetBalance(addr); got.Cmp(uint256.NewInt(10)) != 0 {
		t.Fatalf("GetBalance after revert = %v, want 10", got)
	}
}

func TestSnapshotRevertUnknownIDFails(t *testing.T) {
	snaps, _ := newTestSnapshotManager(t)
	if snaps.Revert(999) {
		t.Fatal("Revert should fail for an id that was never issued")
	}
}

func TestSnapshotIDReissuedAfterRevert(t *testing.T) {
	snaps, _ := newTestSnapshotManager(t)
	id1 := snaps.Snapshot()
	if !snaps.Revert(id1) {
		t.Fatalf("Revert(%d) failed", id1)
	}
	id2 := snaps.Snapshot()
	if id2 != id1 {
		t.Fatalf("Snapshot after revert = %d, want reissued %d", id2, id1)
	}
}

func TestSnapshotRevertDiscardsLaterSnapshots(t *testing.T) {
	snaps, _ := newTestSnapshotManager(t)
	id1 := snaps.Snapshot()
	id2 := snaps.Snapshot()
	if !snaps.Revert(id1) {
		t.Fatalf("Revert(%d) failed", id1)
	}
	if snaps.Revert(id2) {
		t.Fatalf("Revert(%d) should fail: it was discarded by reverting past it", id2)
	}
}
