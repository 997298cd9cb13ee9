package core

import (
	"testing"

	"github.com/holiman/uint256"
)

func newTestCheats(t *testing.T) (*CheatcodeRegistry, *StateStore, *TimeOracle) {
	t.Helper()
	s := newTestStore(t)
	clock := NewTimeOracle()
	return NewCheatcodeRegistry(s, clock), s, clock
}

func TestCheatDealSetsBalance(t *testing.T) {
	cheats, store, _ := newTestCheats(t)
	addr := Address{1}
	if err := cheats.Deal(addr, uint256.NewInt(500)); err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if got := store.GetBalance(addr); got.Cmp(uint256.NewInt(500)) != 0 {
		t.Fatalf("GetBalance = %v, want 500", got)
	}
}

func TestCheatEtchPreservesExistingStorage(t *testing.T) {
	cheats, store, _ := newTestCheats(t)
	addr := Address{2}
	var slot, val Hash
	slot[0], val[0] = 0x01, 0x02
	store.SetStorage(addr, slot, val)
	store.SetCode(addr, []byte{0xAA})

	if err := cheats.Etch(addr, []byte{0xBB}); err != nil {
		t.Fatalf("Etch: %v", err)
	}
	if got := store.GetCode(addr); len(got) != 1 || got[0] != 0xBB {
		t.Fatalf("GetCode = %x, want [0xBB]", got)
	}
	if got := store.GetStorage(addr, slot); got != val {
		t.Fatalf("GetStorage after etch = %v, want unchanged %v", got, val)
	}
	if !cheats.IsEtched(addr) {
		t.Fatal("IsEtched should report true after Etch")
	}
}

func TestCheatSetNonceAcceptsDownwardOverride(t *testing.T) {
	cheats, store, _ := newTestCheats(t)
	addr := Address{3}
	store.SetNonce(addr, Nonce{Tx: 10})
	if err := cheats.SetNonce(addr, Nonce{Tx: 2}); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	if got := store.GetNonce(addr).Tx; got != 2 {
		t.Fatalf("GetNonce().Tx = %d, want 2 (cheatcodes accept downward overrides silently)", got)
	}
}

func TestCheatWarpSetsNextBlockTimestampOnce(t *testing.T) {
	cheats, _, clock := newTestCheats(t)
	target := clock.Now() + 500
	if err := cheats.Warp(target); err != nil {
		t.Fatalf("Warp: %v", err)
	}
	if got := clock.SealAdvance(); got != target {
		t.Fatalf("SealAdvance after Warp = %d, want %d", got, target)
	}
	if got := clock.SealAdvance(); got != target+1 {
		t.Fatalf("second SealAdvance = %d, want baseline %d (warp consumed)", got, target+1)
	}
}

func TestCheatStartStopPrank(t *testing.T) {
	cheats, _, _ := newTestCheats(t)
	var txHash Hash
	txHash[0] = 0x01
	sender, origin := Address{4}, Address{5}

	cheats.StartPrank(txHash, sender, origin)
	p := cheats.ActivePrank(txHash)
	if p == nil || p.sender != sender || p.origin != origin {
		t.Fatalf("ActivePrank = %+v, want sender=%v origin=%v", p, sender, origin)
	}
	cheats.StopPrank(txHash)
	if cheats.ActivePrank(txHash) != nil {
		t.Fatal("ActivePrank should be nil after StopPrank")
	}
}
