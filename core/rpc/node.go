// Package rpc exposes a running node's Sequencer, State Store and Cheatcode
// Registry over JSON-RPC 2.0. Node is the one object every handler closes
// over; it owns no chain-mutating logic of its own — every write passes
// through to core.Sequencer or the cheat methods on core.CheatcodeRegistry,
// so the admin surface and a contract-side cheatcode can never disagree
// about what an operation does.
package rpc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"anvilzksync/core"
)

// DefaultChainID matches the well-known anvil-zksync development chain id.
const DefaultChainID uint64 = 260

// NodeConfig wires a Node to the core subsystems it fronts.
type NodeConfig struct {
	Store     *core.StateStore
	Index     *core.ChainIndex
	Pool      *core.Mempool
	Clock     *core.TimeOracle
	Fees      *core.FeeOracle
	Cheats    *core.CheatcodeRegistry
	Snaps     *core.SnapshotManager
	Sequencer *core.Sequencer
	Fork      core.ForkBackend // nil unless started with `fork`/`replay_tx`
	Rich      []core.RichAccount
	ChainID   uint64
	Logger    *logrus.Logger
}

// Node is the shared receiver for every RPC method family (eth_, zks_,
// anvil_, hardhat_, evm_, debug_, config_). Its instanceID is a uuid,
// logged on each request line the server writes while config_setShowCalls
// is on, so a multi-node test run's logs can be told apart.
type Node struct {
	mu sync.RWMutex

	store  *core.StateStore
	index  *core.ChainIndex
	pool   *core.Mempool
	clock  *core.TimeOracle
	fees   *core.FeeOracle
	cheats *core.CheatcodeRegistry
	snaps  *core.SnapshotManager
	seq    *core.Sequencer
	fork   core.ForkBackend
	rich   []core.RichAccount

	chainID    uint64
	instanceID string
	log        *logrus.Logger

	showCalls       bool
	resolveHashes   bool
	showStorageLogs bool
	loggingEnabled  bool
}

func NewNode(cfg NodeConfig) *Node {
	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Node{
		store: cfg.Store, index: cfg.Index, pool: cfg.Pool, clock: cfg.Clock,
		fees: cfg.Fees, cheats: cfg.Cheats, snaps: cfg.Snaps, seq: cfg.Sequencer,
		fork: cfg.Fork, rich: cfg.Rich, chainID: chainID,
		instanceID:     uuid.NewString(),
		log:            log,
		loggingEnabled: true,
	}
}
