package core

import (
	"testing"

	"github.com/holiman/uint256"
)

func newTestSequencer(t *testing.T) (*Sequencer, *StateStore, *Mempool, *ChainIndex) {
	t.Helper()
	store := newTestStore(t)
	index := NewChainIndex()
	pool := NewMempool(store)
	clock := NewTimeOracle()
	fees := NewFeeOracle(1_000_000_000, 30_000_000)
	cheats := NewCheatcodeRegistry(store, clock)
	snaps := NewSnapshotManager(store, index, pool, clock, fees)
	seq := NewSequencer(SequencerConfig{
		Store: store, Index: index, Pool: pool, Clock: clock, Fees: fees, Cheats: cheats, Snaps: snaps,
	})
	return seq, store, pool, index
}

func TestSequencerSubmitTxAutoMinesOneBlock(t *testing.T) {
	seq, store, pool, index := newTestSequencer(t)
	from := Address{1}
	pool.Impersonate(from)
	store.SetBalance(from, uint256.NewInt(1_000_000_000_000))

	tx := &Transaction{From: from, GasLimit: 100_000}
	if _, err := seq.SubmitTx(tx); err != nil {
		t.Fatalf("SubmitTx: %v", err)
	}
	if index.Len() != 1 {
		t.Fatalf("index.Len() = %d, want 1", index.Len())
	}
	head := index.Head()
	if head.Number != 1 {
		t.Fatalf("head.Number = %d, want 1", head.Number)
	}
}

func TestSequencerAutoMineOffQueuesWithoutSealing(t *testing.T) {
	seq, store, pool, index := newTestSequencer(t)
	seq.SetAutoMine(false)
	from := Address{2}
	pool.Impersonate(from)
	store.SetBalance(from, uint256.NewInt(1_000_000_000_000))

	tx := &Transaction{From: from, GasLimit: 100_000}
	if _, err := seq.SubmitTx(tx); err != nil {
		t.Fatalf("SubmitTx: %v", err)
	}
	if index.Len() != 0 {
		t.Fatalf("index.Len() = %d, want 0 with auto-mine off", index.Len())
	}
	if pool.Len() != 1 {
		t.Fatalf("pool.Len() = %d, want 1", pool.Len())
	}
}

func TestSequencerMineBatchAdvancesTimestampsByInterval(t *testing.T) {
	seq, _, _, _ := newTestSequencer(t)
	heads, err := seq.Mine(3, 10)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if len(heads) != 3 {
		t.Fatalf("Mine returned %d headers, want 3", len(heads))
	}
	if heads[1].Timestamp-heads[0].Timestamp != 10 {
		t.Fatalf("block 2 - block 1 timestamp delta = %d, want 10", heads[1].Timestamp-heads[0].Timestamp)
	}
}

func TestSequencerRollFastForwardsToHeight(t *testing.T) {
	seq, _, _, index := newTestSequencer(t)
	if err := seq.Roll(5); err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if index.Len() != 5 {
		t.Fatalf("index.Len() = %d, want 5", index.Len())
	}
	if err := seq.Roll(3); err == nil {
		t.Fatal("Roll to a height behind the current head should error")
	}
}

func TestSequencerSealUsesAbsoluteTimestampNotADoubledSum(t *testing.T) {
	seq, _, _, index := newTestSequencer(t)
	heads, err := seq.Mine(1, 0)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	want := genesisTimestamp + 1
	if heads[0].Timestamp != want {
		t.Fatalf("block timestamp = %d, want %d (genesis+1, not genesis doubled)", heads[0].Timestamp, want)
	}
	if index.Head().Timestamp != want {
		t.Fatalf("head timestamp = %d, want %d", index.Head().Timestamp, want)
	}
}

func TestSequencerRevertDiscardsWritesButCommitKeepsThem(t *testing.T) {
	seq, store, pool, _ := newTestSequencer(t)
	from := Address{20}
	pool.Impersonate(from)
	store.SetBalance(from, uint256.NewInt(1_000_000_000_000))

	revertTx := &Transaction{
		Type:     TxCreate,
		From:     from,
		Nonce:    0,
		GasLimit: 1_000_000,
		Data:     []byte{byte(REVERT)},
	}
	if _, err := seq.SubmitTx(revertTx); err != nil {
		t.Fatalf("SubmitTx(revert): %v", err)
	}
	revertAddr := deriveCreateAddress(from, 0)
	if got := store.GetCode(revertAddr); got != nil {
		t.Fatalf("reverted TxCreate must not leave deployed code behind, got %x", got)
	}

	okTx := &Transaction{
		Type:     TxCreate,
		From:     from,
		Nonce:    1,
		GasLimit: 1_000_000,
		Data:     []byte{byte(STOP)},
	}
	if _, err := seq.SubmitTx(okTx); err != nil {
		t.Fatalf("SubmitTx(ok): %v", err)
	}
	okAddr := deriveCreateAddress(from, 1)
	if got := store.GetCode(okAddr); string(got) != string([]byte{byte(STOP)}) {
		t.Fatalf("successful TxCreate should commit its deployed code, got %x", got)
	}
}

func TestSequencerParentHashChains(t *testing.T) {
	seq, _, _, index := newTestSequencer(t)
	if _, err := seq.Mine(2, 1); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	first := index.ByNumber(1)
	second := index.ByNumber(2)
	if second.Header.ParentHash != first.Header.Hash {
		t.Fatal("second block's ParentHash should equal the first block's Hash")
	}
}
