package core

import (
	"testing"

	"github.com/holiman/uint256"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	s, err := NewStateStore(StateStoreConfig{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	return s
}

func TestStateStoreBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	addr := Address{1}
	amt := uint256.NewInt(42)
	if err := s.SetBalance(addr, amt); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	got := s.GetBalance(addr)
	if got.Cmp(amt) != 0 {
		t.Fatalf("GetBalance = %v, want %v", got, amt)
	}
}

func TestStateStoreLayerDiscardUndoesWrite(t *testing.T) {
	s := newTestStore(t)
	addr := Address{2}
	if err := s.SetBalance(addr, uint256.NewInt(10)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	s.PushLayer()
	if err := s.SetBalance(addr, uint256.NewInt(999)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if err := s.DiscardTop(); err != nil {
		t.Fatalf("DiscardTop: %v", err)
	}
	if got := s.GetBalance(addr); got.Cmp(uint256.NewInt(10)) != 0 {
		t.Fatalf("GetBalance after discard = %v, want 10", got)
	}
}

func TestStateStoreLayerCommitPersistsWrite(t *testing.T) {
	s := newTestStore(t)
	addr := Address{3}
	s.PushLayer()
	if err := s.SetBalance(addr, uint256.NewInt(77)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if err := s.CommitTop(); err != nil {
		t.Fatalf("CommitTop: %v", err)
	}
	if got := s.GetBalance(addr); got.Cmp(uint256.NewInt(77)) != 0 {
		t.Fatalf("GetBalance after commit = %v, want 77", got)
	}
}

func TestStateStoreCodeAndStorage(t *testing.T) {
	s := newTestStore(t)
	addr := Address{4}
	code := []byte{0x60, 0x01}
	if err := s.SetCode(addr, code); err != nil {
		t.Fatalf("SetCode: %v", err)
	}
	if got := s.GetCode(addr); string(got) != string(code) {
		t.Fatalf("GetCode = %x, want %x", got, code)
	}
	var slot, val Hash
	slot[0] = 0xAA
	val[0] = 0xBB
	if err := s.SetStorage(addr, slot, val); err != nil {
		t.Fatalf("SetStorage: %v", err)
	}
	if got := s.GetStorage(addr, slot); got != val {
		t.Fatalf("GetStorage = %v, want %v", got, val)
	}
}

func TestStateStorePublishCodeIsContentAddressedAndIdempotent(t *testing.T) {
	s := newTestStore(t)
	code := []byte{0x60, 0x01, 0x60, 0x02}
	hash := hashBytes(code)

	if err := s.PublishCode(hash, code); err != nil {
		t.Fatalf("PublishCode: %v", err)
	}
	if err := s.PublishCode(hash, code); err != nil {
		t.Fatalf("second PublishCode: %v", err)
	}
	if got := s.GetCodeByHash(hash); string(got) != string(code) {
		t.Fatalf("GetCodeByHash = %x, want %x", got, code)
	}

	addrA, addrB := Address{0xA}, Address{0xB}
	if err := s.SetCode(addrA, code); err != nil {
		t.Fatalf("SetCode addrA: %v", err)
	}
	if err := s.SetCode(addrB, code); err != nil {
		t.Fatalf("SetCode addrB: %v", err)
	}
	if s.GetCodeHash(addrA) != s.GetCodeHash(addrB) {
		t.Fatal("two accounts deployed with identical bytecode should share one code hash")
	}
}

func TestStateStoreFactoryDepMarking(t *testing.T) {
	s := newTestStore(t)
	var hash Hash
	hash[0] = 0x42
	if s.IsFactoryDep(hash) {
		t.Fatal("hash should not be marked before MarkFactoryDep")
	}
	if err := s.MarkFactoryDep(hash); err != nil {
		t.Fatalf("MarkFactoryDep: %v", err)
	}
	if !s.IsFactoryDep(hash) {
		t.Fatal("hash should be marked after MarkFactoryDep")
	}
}

func TestStateStoreRevertToDepth(t *testing.T) {
	s := newTestStore(t)
	addr := Address{5}
	s.SetBalance(addr, uint256.NewInt(1))
	d := s.Depth()
	s.PushLayer()
	s.SetBalance(addr, uint256.NewInt(2))
	s.PushLayer()
	s.SetBalance(addr, uint256.NewInt(3))
	if err := s.RevertToDepth(d); err != nil {
		t.Fatalf("RevertToDepth: %v", err)
	}
	if got := s.GetBalance(addr); got.Cmp(uint256.NewInt(1)) != 0 {
		t.Fatalf("GetBalance after revert = %v, want 1", got)
	}
}
