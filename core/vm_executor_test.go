package core

import (
	"encoding/binary"
	"testing"

	"github.com/holiman/uint256"
)

func pushOp(v uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(PUSH)
	binary.BigEndian.PutUint64(buf[1:], v)
	return buf
}

// storeProgram builds a tiny LightVM program that writes val into slot then
// stops: PUSH slot, PUSH val, STORE, STOP.
func storeProgram(slot, val uint64) []byte {
	var out []byte
	out = append(out, pushOp(slot)...)
	out = append(out, pushOp(val)...)
	out = append(out, byte(STORE), byte(STOP))
	return out
}

func TestExecuteTransferMovesBalance(t *testing.T) {
	s := newTestStore(t)
	from, to := Address{1}, Address{2}
	s.SetBalance(from, uint256.NewInt(1_000))
	toAddr := to

	tx := &Transaction{
		Type:     TxTransfer,
		From:     from,
		To:       &toAddr,
		Value:    uint256.NewInt(100),
		GasLimit: 100_000,
	}
	res := Execute(tx, s, ModeNormal, nil)
	if res.Halted || !res.Status {
		t.Fatalf("Execute halted=%v status=%v reason=%q", res.Halted, res.Status, res.RevertReason)
	}
	if got := s.GetBalance(from); got.Cmp(uint256.NewInt(900)) != 0 {
		t.Fatalf("sender balance = %v, want 900", got)
	}
	if got := s.GetBalance(to); got.Cmp(uint256.NewInt(100)) != 0 {
		t.Fatalf("recipient balance = %v, want 100", got)
	}
}

func TestExecuteHaltsOnInsufficientBalance(t *testing.T) {
	s := newTestStore(t)
	from, to := Address{3}, Address{4}
	tx := &Transaction{
		Type:     TxTransfer,
		From:     from,
		To:       &to,
		Value:    uint256.NewInt(1),
		GasLimit: 100_000,
	}
	res := Execute(tx, s, ModeNormal, nil)
	if !res.Halted {
		t.Fatal("expected Execute to halt a transfer the sender cannot cover")
	}
}

func TestExecuteHaltsBelowIntrinsicGas(t *testing.T) {
	s := newTestStore(t)
	tx := &Transaction{From: Address{5}, GasLimit: 1}
	res := Execute(tx, s, ModeNormal, nil)
	if !res.Halted {
		t.Fatal("expected Execute to halt a transaction below the intrinsic gas floor")
	}
}

func TestExecuteDispatchesCheatAddressThroughRegistry(t *testing.T) {
	s := newTestStore(t)
	clock := NewTimeOracle()
	cheats := NewCheatcodeRegistry(s, clock)

	target := Address{6}
	cheatAddr := CheatAddress
	tx := &Transaction{
		Type:     TxCall,
		From:     Address{7},
		To:       &cheatAddr,
		GasLimit: 100_000,
		Data:     buildDealCall(target, uint256.NewInt(9)),
	}
	res := Execute(tx, s, ModeNormal, cheats)
	if !res.Status {
		t.Fatalf("cheat dispatch failed: %s", res.RevertReason)
	}
	if got := s.GetBalance(target); got.Cmp(uint256.NewInt(9)) != 0 {
		t.Fatalf("GetBalance(target) = %v, want 9 after deal cheat", got)
	}
}

func target_word(a Address) []byte {
	var w [32]byte
	copy(w[12:], a[:])
	return w[:]
}

func buildDealCall(addr Address, amt *Amount) []byte {
	out := make([]byte, 0, 4+32+32)
	out = append(out, 0x00, 0x00, 0x00, 0x01) // selDeal
	out = append(out, target_word(addr)...)
	b := amt.Bytes32()
	out = append(out, b[:]...)
	return out
}

func TestExecuteCreateDeploysCodeAndSetsCreatedAddr(t *testing.T) {
	s := newTestStore(t)
	from := Address{8}
	s.SetBalance(from, uint256.NewInt(1_000))
	code := storeProgram(1, 42)

	tx := &Transaction{
		Type:     TxCreate,
		From:     from,
		Nonce:    0,
		GasLimit: 1_000_000,
		Data:     code,
	}
	res := Execute(tx, s, ModeNormal, nil)
	if res.Halted || !res.Status {
		t.Fatalf("Execute halted=%v status=%v reason=%q", res.Halted, res.Status, res.RevertReason)
	}
	if res.CreatedAddr == nil {
		t.Fatal("expected CreatedAddr to be set on a successful TxCreate")
	}
	if got := s.GetCode(*res.CreatedAddr); string(got) != string(code) {
		t.Fatalf("GetCode(created) = %x, want %x", got, code)
	}
	var slot Hash
	slot[31] = 1
	var wantVal Hash
	wantVal[31] = 42
	if got := s.GetStorage(*res.CreatedAddr, slot); got != wantVal {
		t.Fatalf("constructor storage write = %v, want %v", got, wantVal)
	}
}

func TestExecuteCallRunsDeployedCode(t *testing.T) {
	s := newTestStore(t)
	contract := Address{9}
	code := storeProgram(2, 7)
	if err := s.SetCode(contract, code); err != nil {
		t.Fatalf("SetCode: %v", err)
	}

	tx := &Transaction{
		Type:     TxCall,
		From:     Address{10},
		To:       &contract,
		GasLimit: 1_000_000,
		Data:     []byte{0x01}, // non-empty so Execute looks up stored code
	}
	res := Execute(tx, s, ModeNormal, nil)
	if res.Halted || !res.Status {
		t.Fatalf("Execute halted=%v status=%v reason=%q", res.Halted, res.Status, res.RevertReason)
	}
	var slot Hash
	slot[31] = 2
	var wantVal Hash
	wantVal[31] = 7
	if got := s.GetStorage(contract, slot); got != wantVal {
		t.Fatalf("call storage write = %v, want %v", got, wantVal)
	}
}

func TestExecuteRevertDoesNotSetCreatedAddr(t *testing.T) {
	s := newTestStore(t)
	from := Address{11}
	s.SetBalance(from, uint256.NewInt(1_000))
	code := []byte{byte(REVERT)}

	tx := &Transaction{Type: TxCreate, From: from, GasLimit: 1_000_000, Data: code}
	res := Execute(tx, s, ModeNormal, nil)
	if res.Status {
		t.Fatal("expected the REVERT constructor to fail")
	}
	if res.CreatedAddr != nil {
		t.Fatal("a reverted TxCreate must not report a CreatedAddr")
	}
}

func TestCheatLoadGetNonceAndAddr(t *testing.T) {
	s := newTestStore(t)
	clock := NewTimeOracle()
	cheats := NewCheatcodeRegistry(s, clock)

	addr := Address{12}
	var slot, val Hash
	slot[31] = 5
	val[31] = 99
	if err := s.SetStorage(addr, slot, val); err != nil {
		t.Fatalf("SetStorage: %v", err)
	}
	if got := cheats.Load(addr, slot); got != val {
		t.Fatalf("Load = %v, want %v", got, val)
	}

	if err := s.SetNonce(addr, Nonce{Tx: 3}); err != nil {
		t.Fatalf("SetNonce: %v", err)
	}
	if got := cheats.GetNonce(addr); got.Tx != 3 {
		t.Fatalf("GetNonce.Tx = %d, want 3", got.Tx)
	}

	var pk [32]byte
	pk[0] = 0xAB
	a1 := cheats.DeriveAddress(pk)
	a2 := cheats.DeriveAddress(pk)
	if a1 != a2 {
		t.Fatal("DeriveAddress must be deterministic for the same key")
	}
}

func TestExecuteDispatchesLoadGetNonceAddrCheats(t *testing.T) {
	s := newTestStore(t)
	clock := NewTimeOracle()
	cheats := NewCheatcodeRegistry(s, clock)

	target := Address{13}
	var slot, val Hash
	slot[31] = 1
	val[31] = 0x77
	s.SetStorage(target, slot, val)

	cheatAddr := CheatAddress
	input := make([]byte, 0, 4+64)
	input = append(input, 0x00, 0x00, 0x00, 0x08) // selLoad
	input = append(input, target_word(target)...)
	input = append(input, slot[:]...)
	tx := &Transaction{Type: TxCall, From: Address{14}, To: &cheatAddr, GasLimit: 100_000, Data: input}
	res := Execute(tx, s, ModeNormal, cheats)
	if !res.Status {
		t.Fatalf("load cheat dispatch failed: %s", res.RevertReason)
	}
	var got Hash
	copy(got[:], res.ReturnData)
	if got != val {
		t.Fatalf("load cheat returned %v, want %v", got, val)
	}
}

func TestIntrinsicGasChargesPerByteAndFactoryDep(t *testing.T) {
	base := IntrinsicGas(&Transaction{})
	withData := IntrinsicGas(&Transaction{Data: []byte{0x01, 0x00}})
	if withData <= base {
		t.Fatalf("IntrinsicGas with data = %d, want > base %d", withData, base)
	}
	withDep := IntrinsicGas(&Transaction{FactoryDeps: []Hash{{1}}})
	if withDep-base != 32_000 {
		t.Fatalf("IntrinsicGas delta for one factory dep = %d, want 32000", withDep-base)
	}
}
