package core

import (
	"testing"

	"github.com/holiman/uint256"
)

func newTestMempool(t *testing.T) (*Mempool, *StateStore) {
	t.Helper()
	s := newTestStore(t)
	return NewMempool(s), s
}

func TestMempoolSubmitRejectsMissingSignature(t *testing.T) {
	m, _ := newTestMempool(t)
	tx := &Transaction{From: Address{1}, GasLimit: 100_000}
	if _, err := m.Submit(tx, 0); err == nil {
		t.Fatal("expected an error for an unsigned, non-impersonated sender")
	}
}

func TestMempoolSubmitAcceptsImpersonatedSender(t *testing.T) {
	m, _ := newTestMempool(t)
	from := Address{2}
	m.Impersonate(from)
	tx := &Transaction{From: from, GasLimit: 100_000}
	if _, err := m.Submit(tx, 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestMempoolSubmitRejectsInsufficientBalance(t *testing.T) {
	m, _ := newTestMempool(t)
	from := Address{3}
	m.Impersonate(from)
	tx := &Transaction{From: from, GasLimit: 100_000, Value: uint256.NewInt(1)}
	if _, err := m.Submit(tx, 0); err == nil {
		t.Fatal("expected insufficient balance error")
	}
}

func TestMempoolPopDrainsInFIFOOrder(t *testing.T) {
	m, _ := newTestMempool(t)
	from := Address{4}
	m.Impersonate(from)
	var hashes []Hash
	for i := uint64(0); i < 3; i++ {
		tx := &Transaction{From: from, Nonce: i, GasLimit: 100_000}
		h, err := m.Submit(tx, 0)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		hashes = append(hashes, h)
	}
	popped := m.Pop(0)
	if len(popped) != 3 {
		t.Fatalf("Pop returned %d transactions, want 3", len(popped))
	}
	for i, pt := range popped {
		if pt.Hash != hashes[i] {
			t.Fatalf("pop order[%d] = %v, want %v", i, pt.Hash, hashes[i])
		}
	}
	if m.Len() != 0 {
		t.Fatalf("Len() after Pop = %d, want 0", m.Len())
	}
}

func TestMempoolAutoImpersonateExemptsEverySender(t *testing.T) {
	m, _ := newTestMempool(t)
	m.SetAutoImpersonate(true)
	tx := &Transaction{From: Address{5}, GasLimit: 100_000}
	if _, err := m.Submit(tx, 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}
