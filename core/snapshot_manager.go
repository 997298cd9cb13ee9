// Snapshot Manager: the LIFO id stack behind anvil_snapshot/anvil_revert.
// Ids are handed out in increasing order and reused once reverted past —
// snapshotting after a revert to id k reissues k itself — mirroring the
// teacher's chain_fork_manager bookkeeping generalized from named forks to
// anonymous numbered checkpoints.
package core

import "sync"

type chainSnapshot struct {
	stateDepth int
	chainLen   uint64
	mempool    *mempoolSnapshot
	clock      *timeSnapshot
	fee        *feeSnapshot
}

type SnapshotManager struct {
	mu     sync.Mutex
	nextID uint64
	stack  []*chainSnapshot // stack[i] corresponds to id i+1

	store *StateStore
	index *ChainIndex
	pool  *Mempool
	clock *TimeOracle
	fees  *FeeOracle
}

func NewSnapshotManager(store *StateStore, index *ChainIndex, pool *Mempool, clock *TimeOracle, fees *FeeOracle) *SnapshotManager {
	return &SnapshotManager{nextID: 1, store: store, index: index, pool: pool, clock: clock, fees: fees}
}

// Snapshot records the current chain state, pushes a fresh state layer so
// later writes land above the recorded depth, and returns its id.
func (m *SnapshotManager) Snapshot() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &chainSnapshot{
		stateDepth: m.store.Depth(),
		chainLen:   m.index.Len(),
		mempool:    m.pool.snapshot(),
		clock:      m.clock.snapshot(),
		fee:        m.fees.snapshot(),
	}
	m.store.PushLayer()
	id := m.nextID
	if int(id)-1 < len(m.stack) {
		m.stack[id-1] = snap
	} else {
		m.stack = append(m.stack, snap)
	}
	m.nextID++
	return id
}

// Revert restores the chain to the state recorded at id, discards every
// snapshot taken after it, and makes id available for reissue by the next
// Snapshot call. Reverting to an id that was never issued, or was already
// reverted past, returns false.
func (m *SnapshotManager) Revert(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == 0 || int(id) > len(m.stack) || m.stack[id-1] == nil {
		return false
	}
	snap := m.stack[id-1]

	m.store.RevertToDepth(snap.stateDepth)
	m.index.Truncate(snap.chainLen)
	m.pool.restore(snap.mempool)
	m.clock.restore(snap.clock)
	m.fees.restore(snap.fee)

	m.stack = m.stack[:id-1]
	m.nextID = id
	return true
}
