// Mempool: the FIFO staging area between transaction submission and block
// production. Admission checks (signature-shaped sender, nonce, balance,
// intrinsic gas) run here so the Sequencer only ever pulls transactions
// that are at least eligible to attempt execution; the transaction can
// still halt or revert once run.
package core

import (
	"sync"
)

// PooledTx wraps a Transaction with the bookkeeping the pool needs to keep
// it ordered and to drop it once included or replaced.
type PooledTx struct {
	Tx       *Transaction
	Hash     Hash
	Received int64
}

// Mempool holds pending transactions keyed by hash plus an admission
// ordering queue. Impersonated senders bypass the signature-shape check,
// mirroring anvil_impersonateAccount; the set is tracked the same way the
// teacher's access-control layer tracks role grants — an in-memory set
// guarded by a mutex, no ledger persistence needed since the pool itself
// is ephemeral.
type Mempool struct {
	mu           sync.Mutex
	queue        []Hash
	byHash       map[Hash]*PooledTx
	impersonated map[Address]bool
	autoImp      bool
	state        StateRW
}

// NewMempool constructs an empty pool bound to state for nonce/balance
// admission checks.
func NewMempool(state StateRW) *Mempool {
	return &Mempool{
		byHash:       make(map[Hash]*PooledTx),
		impersonated: make(map[Address]bool),
		state:        state,
	}
}

// Submit admits tx into the pool after running the stateless + stateful
// checks. Unless auto-impersonation is on, a transaction from a
// non-impersonated sender (rich accounts included) still requires
// Signature to be non-empty (this node does not verify
// signature bytes cryptographically — it only checks one was supplied —
// since the dev-node's purpose is fast iteration, not adversarial safety).
func (m *Mempool) Submit(tx *Transaction, now int64) (Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.impersonated[tx.From] && !m.autoImp && len(tx.Signature) == 0 {
		return Hash{}, NewError(KindValidation, "Submit", "missing signature for non-impersonated sender")
	}

	expected := m.state.GetNonce(tx.From).Tx
	if tx.Nonce < expected {
		return Hash{}, NewError(KindValidation, "Submit", "nonce too low")
	}

	intrinsic := IntrinsicGas(tx)
	if tx.GasLimit < intrinsic {
		return Hash{}, NewError(KindValidation, "Submit", "gas limit below intrinsic floor")
	}

	if tx.Value != nil {
		bal := m.state.GetBalance(tx.From)
		if bal.Cmp(tx.Value) < 0 {
			return Hash{}, NewError(KindValidation, "Submit", "insufficient balance")
		}
	}

	h := tx.TxHash()
	if _, exists := m.byHash[h]; exists {
		return h, NewError(KindValidation, "Submit", "transaction already known")
	}
	m.byHash[h] = &PooledTx{Tx: tx, Hash: h, Received: now}
	m.queue = append(m.queue, h)
	return h, nil
}

// Pop removes and returns up to n transactions in FIFO order, or every
// pending transaction when n <= 0.
func (m *Mempool) Pop(n int) []*PooledTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.queue) {
		n = len(m.queue)
	}
	out := make([]*PooledTx, 0, n)
	for _, h := range m.queue[:n] {
		if pt, ok := m.byHash[h]; ok {
			out = append(out, pt)
			delete(m.byHash, h)
		}
	}
	m.queue = m.queue[n:]
	return out
}

// Drop removes a transaction without producing a block for it, used when
// a submitted transaction is later found to conflict (e.g. nonce reused).
func (m *Mempool) Drop(h Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, h)
	for i, qh := range m.queue {
		if qh == h {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

// Len reports the number of transactions currently pending.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Impersonate marks addr's transactions as exempt from the signature
// check, the mempool side of anvil_impersonateAccount.
func (m *Mempool) Impersonate(addr Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.impersonated[addr] = true
}

// StopImpersonating reverses Impersonate.
func (m *Mempool) StopImpersonating(addr Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.impersonated, addr)
}

// SetAutoImpersonate toggles anvil_autoImpersonateAccount, which exempts
// every sender from the signature check regardless of the impersonated set.
func (m *Mempool) SetAutoImpersonate(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoImp = on
}

// mempoolSnapshot captures enough of the pool to be restored by the Snapshot
// Manager: the queue order, the impersonation set and the auto-impersonate
// flag. Individual PooledTx values are reused by reference since the pool
// never mutates one in place.
type mempoolSnapshot struct {
	queue        []Hash
	byHash       map[Hash]*PooledTx
	impersonated map[Address]bool
	autoImp      bool
}

func (m *Mempool) snapshot() *mempoolSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &mempoolSnapshot{
		queue:        append([]Hash(nil), m.queue...),
		byHash:       make(map[Hash]*PooledTx, len(m.byHash)),
		impersonated: make(map[Address]bool, len(m.impersonated)),
		autoImp:      m.autoImp,
	}
	for k, v := range m.byHash {
		s.byHash[k] = v
	}
	for k, v := range m.impersonated {
		s.impersonated[k] = v
	}
	return s
}

func (m *Mempool) restore(s *mempoolSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = s.queue
	m.byHash = s.byHash
	m.impersonated = s.impersonated
	m.autoImp = s.autoImp
}
