// Sequencer: the single-writer actor that turns pending transactions into
// sealed blocks. Every chain-mutating RPC — sending a transaction,
// anvil_mine, a cheat that needs to land atomically — funnels through one
// of its exported methods, each of which takes the sequencer's mutex for
// its whole duration. This keeps block production linearizable without
// needing a request/response channel of its own: Go's mutex already gives
// us the single-writer property the teacher's actor-style subsystems get
// from a dedicated goroutine and inbound channel.
package core

import (
	"github.com/sirupsen/logrus"
	"sync"
)

// SequencerConfig wires a Sequencer to its subsystems. Store, Index, Pool,
// Clock and Fees are required; NewSequencer panics if any of them is nil,
// since a sequencer missing one cannot seal a block. Cheats and Snaps are
// not checked, and a nil Logger is replaced by a fresh logrus logger.
type SequencerConfig struct {
	Store  *StateStore
	Index  *ChainIndex
	Pool   *Mempool
	Clock  *TimeOracle
	Fees   *FeeOracle
	Cheats *CheatcodeRegistry
	Snaps  *SnapshotManager
	Logger *logrus.Logger
}

// Sequencer seals one block per call in the common (non-batch) case,
// matching the node's "at most one block per L1 batch" invariant: there is
// no background ticker, no mempool-draining loop — a block is produced only
// in direct response to a request that demands one.
type Sequencer struct {
	mu     sync.Mutex
	store  *StateStore
	index  *ChainIndex
	pool   *Mempool
	clock  *TimeOracle
	fees   *FeeOracle
	cheats *CheatcodeRegistry
	snaps  *SnapshotManager
	log    *logrus.Logger

	autoMine bool
}

func NewSequencer(cfg SequencerConfig) *Sequencer {
	if cfg.Store == nil || cfg.Index == nil || cfg.Pool == nil || cfg.Clock == nil || cfg.Fees == nil {
		panic("core: NewSequencer requires a complete SequencerConfig")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Sequencer{
		store: cfg.Store, index: cfg.Index, pool: cfg.Pool,
		clock: cfg.Clock, fees: cfg.Fees, cheats: cfg.Cheats, snaps: cfg.Snaps,
		log: log, autoMine: true,
	}
}

// SetAutoMine toggles whether SubmitTx seals a block immediately (the
// default) or merely queues the transaction for a later explicit Mine call,
// mirroring evm_setAutomine.
func (s *Sequencer) SetAutoMine(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoMine = on
}

// SubmitTx validates and enqueues tx. With auto-mining on (the default) it
// also seals the block that contains it before returning, so the caller's
// eth_sendTransaction sees a mined receipt rather than a pending one.
func (s *Sequencer) SubmitTx(tx *Transaction) (Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.pool.Submit(tx, s.clock.Now())
	if err != nil {
		return Hash{}, err
	}
	if s.autoMine {
		if _, err := s.sealLocked(1, 0, false); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Mine seals n blocks, advancing the virtual clock by interval between
// each (anvil_mine semantics). interval == 0 seals every block in the batch
// through the ordinary SealAdvance path (+1 per block unless a next-block
// override or a standing interval is set).
func (s *Sequencer) Mine(n int, interval int64) ([]*BlockHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil, NewError(KindValidation, "Mine", "n must be positive")
	}
	headers := make([]*BlockHeader, 0, n)
	for i := 0; i < n; i++ {
		isFirst := i == 0
		isLast := i == n-1
		var h *BlockHeader
		var err error
		if interval == 0 {
			h, err = s.sealLocked(0, 0, false)
		} else {
			h, err = s.sealLocked(0, interval, true, isFirst, isLast)
		}
		if err != nil {
			return headers, err
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// sealLocked produces exactly one block. limit caps how many pooled
// transactions it drains (0 = unlimited). batch, when true, advances the
// clock via IntervalBlockAdvance(isFirst, isLast, interval) instead of the
// ordinary SealAdvance; isFirst/isLast are variadic purely so the common
// single-block call site above doesn't have to spell out two booleans it
// doesn't need.
func (s *Sequencer) sealLocked(limit int, interval int64, batch bool, firstLast ...bool) (*BlockHeader, error) {
	var ts int64
	if batch {
		isFirst, isLast := true, true
		if len(firstLast) == 2 {
			isFirst, isLast = firstLast[0], firstLast[1]
		}
		ts = s.clock.IntervalBlockAdvance(isFirst, isLast, interval)
	} else {
		ts = s.clock.SealAdvance()
	}

	pending := s.pool.Pop(limit)
	baseFee := s.fees.CurrentBaseFee()

	s.store.PushLayer()
	var (
		receipts []*Receipt
		hashes   []Hash
		gasUsed  uint64
	)
	traces := make(map[Hash]*CallFrame)
	num := s.index.NextNumber()
	for i, pooled := range pending {
		tx := pooled.Tx
		s.store.PushLayer()
		res := Execute(tx, s.store, ModeNormal, s.cheats)
		if res.Halted {
			s.store.DiscardTop()
			s.log.WithFields(logrus.Fields{"tx": tx.TxHash().Hex(), "reason": res.RevertReason}).Warn("transaction halted before execution")
			continue
		}
		if !res.Status {
			s.store.DiscardTop()
		} else {
			s.store.CommitTop()
		}

		hashes = append(hashes, tx.TxHash())
		gasUsed += res.GasUsed
		receipts = append(receipts, &Receipt{
			TxHash:            tx.TxHash(),
			Status:            res.Status,
			GasUsed:           res.GasUsed,
			EffectiveGasPrice: baseFee,
			Logs:              res.Logs,
			RevertReason:      res.RevertReason,
			ReturnData:        res.ReturnData,
			ContractAddress:   res.CreatedAddr,
			BlockNumber:       num,
			TransactionIndex:  uint32(i),
			L1BatchNumber:     num,
		})
		if res.Trace != nil {
			traces[tx.TxHash()] = res.Trace
		}
	}

	header := &BlockHeader{
		Number:        num,
		ParentHash:    s.parentHashLocked(),
		Timestamp:     ts,
		BaseFee:       baseFee,
		GasLimit:      defaultGasLimit,
		GasUsed:       gasUsed,
		L1BatchNumber: num,
		TxHashes:      hashes,
	}
	header.Hash = computeBlockHash(header)
	for _, r := range receipts {
		r.BlockHash = header.Hash
	}

	if err := s.store.CommitTop(); err != nil {
		return nil, err
	}
	s.index.Append(header, receipts, traces)
	s.fees.Retarget(gasUsed)

	s.log.WithFields(logrus.Fields{
		"number": header.Number, "txs": len(receipts), "timestamp": header.Timestamp,
	}).Info("sealed block")
	return header, nil
}

func (s *Sequencer) parentHashLocked() Hash {
	if h := s.index.Head(); h != nil {
		return h.Hash
	}
	return Hash{}
}

// Roll fast-forwards the chain to blockNumber by sealing blocks (the first
// one drains any pending transactions). No RPC handler calls it, and the
// roll cheat selector returns an error rather than reaching it.
// It is a no-op (and an error) if blockNumber is not ahead of the head.
func (s *Sequencer) Roll(blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.index.Len()
	if blockNumber <= cur {
		return NewError(KindValidation, "Roll", "target block number must be ahead of the current head")
	}
	for s.index.Len() < blockNumber {
		if _, err := s.sealLocked(0, 0, false); err != nil {
			return err
		}
	}
	return nil
}

// Head returns the most recently sealed block header, or nil before
// genesis.
func (s *Sequencer) Head() *BlockHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Head()
}
