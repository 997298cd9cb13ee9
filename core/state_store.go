// State Store: the copy-on-write, layered key/value backend every other
// subsystem reads and writes through. A store is a stack of layers; layer 0
// is the persisted base, and each later layer buffers writes until it is
// either committed into the layer below or discarded. The Sequencer pushes
// one layer per in-flight transaction and one per in-flight block so a
// reverted transaction, or a dropped block, never touches the base.
//
// Persistence follows the same write-ahead-log + periodic-snapshot shape as
// a conventional embedded ledger: every committed write is appended to a
// log file before being considered durable, and every SnapshotInterval
// base commits the committing call itself compacts the log into a single
// gob-free JSON blob.
package core

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// StateIterator walks a key range in lexicographic order.
type StateIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
}

// StateRW is the full read/write surface the VM Executor, cheatcode layer
// and RPC handlers use to touch account state. It is implemented by
// *StateStore.
type StateRW interface {
	GetBalance(addr Address) *Amount
	SetBalance(addr Address, amt *Amount) error
	AddBalance(addr Address, delta *Amount) error
	SubBalance(addr Address, delta *Amount) error
	GetNonce(addr Address) Nonce
	SetNonce(addr Address, n Nonce) error
	GetCode(addr Address) []byte
	SetCode(addr Address, code []byte) error
	GetCodeHash(addr Address) Hash
	GetCodeByHash(hash Hash) []byte
	PublishCode(hash Hash, code []byte) error
	MarkFactoryDep(hash Hash) error
	IsFactoryDep(hash Hash) bool
	GetStorage(addr Address, slot Hash) Hash
	SetStorage(addr Address, slot Hash, val Hash) error
	PrefixIterator(prefix []byte) StateIterator
}

// StateStoreConfig mirrors the WAL/snapshot knobs a persisted ledger takes,
// generalized to the key/value model used here.
type StateStoreConfig struct {
	CacheDir         string
	SnapshotInterval int // commits between automatic snapshots; 0 disables
	Logger           *logrus.Logger
}

type walRecord struct {
	Op       string `json:"op"` // "bal" | "nonce" | "codehash" | "store" | "bytecode" | "factorydep"
	Addr     Address
	Slot     Hash
	CodeHash Hash
	Bytes    []byte
	Text     string
}

// baseSnapshot is the on-disk shape of a compacted base layer: per-account
// state plus the two hash-keyed tables content-addressed code and
// factory-dep markers live in, per §4.1's data model.
type baseSnapshot struct {
	Accounts    map[Address]*layerAccount
	Bytecodes   map[Hash][]byte
	FactoryDeps map[Hash]bool
}

// StateStore owns the layer stack plus the on-disk WAL/snapshot pair that
// back layer 0. Callers never touch stateLayer directly once a StateStore
// exists.
type StateStore struct {
	mu      sync.RWMutex
	layers  []*stateLayer
	walFile *os.File
	cfg     StateStoreConfig
	writes  int
	log     *logrus.Logger
	fork    ForkBackend
}

// AttachFork wires a fork backend for read-through on a local miss. A store
// with no fork attached (the common, non-forked case) answers every miss
// with the zero value, exactly as before.
func (s *StateStore) AttachFork(fb ForkBackend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fork = fb
}

// NewStateStore opens (or creates) the WAL at cfg.CacheDir/state.wal and
// replays it into a fresh base layer.
func NewStateStore(cfg StateStoreConfig) (*StateStore, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &StateStore{cfg: cfg, log: log}
	base := newStateLayer()
	s.layers = []*stateLayer{base}

	if cfg.CacheDir == "" {
		return s, nil
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, WrapError(KindInternal, "NewStateStore", err)
	}
	walPath := filepath.Join(cfg.CacheDir, "state.wal")
	snapPath := filepath.Join(cfg.CacheDir, "state.snap")

	if f, err := os.Open(snapPath); err == nil {
		defer f.Close()
		var snap baseSnapshot
		if err := json.NewDecoder(f).Decode(&snap); err != nil {
			return nil, WrapError(KindInternal, "NewStateStore", fmt.Errorf("decode snapshot: %w", err))
		}
		if snap.Accounts != nil {
			base.accounts = snap.Accounts
		}
		base.bytecodes = snap.Bytecodes
		base.factoryDeps = snap.FactoryDeps
	} else if !os.IsNotExist(err) {
		return nil, WrapError(KindInternal, "NewStateStore", err)
	}

	wal, err := os.OpenFile(walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, WrapError(KindInternal, "NewStateStore", fmt.Errorf("open WAL: %w", err))
	}
	s.walFile = wal

	scanner := bufio.NewScanner(wal)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var rec walRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, WrapError(KindInternal, "NewStateStore", fmt.Errorf("WAL decode: %w", err))
		}
		base.applyRecord(rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, WrapError(KindInternal, "NewStateStore", fmt.Errorf("WAL scan: %w", err))
	}
	return s, nil
}

func (s *StateStore) top() *stateLayer {
	return s.layers[len(s.layers)-1]
}

// PushLayer opens a new copy-on-write overlay and returns its depth, used
// by the Sequencer to isolate a transaction or a block-in-progress and by
// the Snapshot Manager to mark a revert point.
func (s *StateStore) PushLayer() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, newStateLayer())
	return len(s.layers) - 1
}

// Depth reports the current number of layers (base counts as depth 0).
func (s *StateStore) Depth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers) - 1
}

// CommitTop merges the top layer's writes into the layer beneath it and
// pops the stack. Used when a transaction succeeds or a block seals.
func (s *StateStore) CommitTop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.layers) < 2 {
		return NewError(KindInternal, "CommitTop", "no layer to commit")
	}
	top := s.layers[len(s.layers)-1]
	under := s.layers[len(s.layers)-2]
	under.mergeFrom(top)
	s.layers = s.layers[:len(s.layers)-1]
	if len(s.layers) == 1 {
		return s.persistLocked(top)
	}
	return nil
}

// DiscardTop drops the top layer's writes entirely, used when a
// transaction halts or reverts and to drop eth_call/estimateGas scratch
// layers. Rewinding to a snapshot goes through RevertToDepth instead.
func (s *StateStore) DiscardTop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.layers) < 2 {
		return NewError(KindInternal, "DiscardTop", "no layer to discard")
	}
	s.layers = s.layers[:len(s.layers)-1]
	return nil
}

// RevertToDepth pops layers until exactly depth non-base overlays remain,
// discarding everything above. It is the primitive behind anvil_revert.
func (s *StateStore) RevertToDepth(depth int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if depth < 0 || depth > len(s.layers)-1 {
		return NewError(KindEnvironment, "RevertToDepth", "depth out of range")
	}
	s.layers = s.layers[:depth+1]
	return nil
}

func (s *StateStore) persistLocked(committed *stateLayer) error {
	if s.walFile == nil {
		return nil
	}
	for _, rec := range committed.records() {
		b, err := json.Marshal(rec)
		if err != nil {
			return WrapError(KindInternal, "persist", err)
		}
		if _, err := s.walFile.Write(append(b, '\n')); err != nil {
			return WrapError(KindInternal, "persist", err)
		}
	}
	s.writes++
	if s.cfg.SnapshotInterval > 0 && s.writes%s.cfg.SnapshotInterval == 0 {
		if err := s.snapshotLocked(); err != nil {
			s.log.WithError(err).Warn("state store: snapshot failed")
		}
	}
	return nil
}

func (s *StateStore) snapshotLocked() error {
	snapPath := filepath.Join(s.cfg.CacheDir, "state.snap")
	tmp := snapPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	base := s.layers[0]
	snap := baseSnapshot{Accounts: base.accounts, Bytecodes: base.bytecodes, FactoryDeps: base.factoryDeps}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, snapPath); err != nil {
		return err
	}
	if err := s.walFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.walFile.Seek(0, 0)
	return err
}

// --- StateRW surface, always operating against the top layer ---

func (s *StateStore) GetBalance(addr Address) *Amount {
	s.mu.RLock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if a, ok := s.layers[i].accounts[addr]; ok && a.balanceSet {
			s.mu.RUnlock()
			return a.Balance.Clone()
		}
	}
	fork := s.fork
	s.mu.RUnlock()
	if fork == nil {
		return new(Amount)
	}
	amt, err := fork.GetBalance(context.Background(), addr)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr.Hex()).Warn("state store: fork balance lookup failed")
		return new(Amount)
	}
	s.mu.Lock()
	base := s.layers[0].getOrCreate(addr)
	if !base.balanceSet {
		base.Balance = amt.Clone()
		base.balanceSet = true
	}
	s.mu.Unlock()
	return amt
}

func (s *StateStore) SetBalance(addr Address, amt *Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.top()
	acc := top.getOrCreate(addr)
	acc.Balance = amt.Clone()
	acc.balanceSet = true
	top.touch(addr, "bal")
	return nil
}

func (s *StateStore) AddBalance(addr Address, delta *Amount) error {
	cur := s.GetBalance(addr)
	sum, overflow := new(Amount).AddOverflow(cur, delta)
	if overflow {
		return WrapError(KindValidation, "AddBalance", ErrAmountOverflow)
	}
	return s.SetBalance(addr, sum)
}

func (s *StateStore) SubBalance(addr Address, delta *Amount) error {
	cur := s.GetBalance(addr)
	if cur.Cmp(delta) < 0 {
		return NewError(KindValidation, "SubBalance", "insufficient balance")
	}
	return s.SetBalance(addr, new(Amount).Sub(cur, delta))
}

func (s *StateStore) GetNonce(addr Address) Nonce {
	s.mu.RLock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if a, ok := s.layers[i].accounts[addr]; ok && a.nonceSet {
			s.mu.RUnlock()
			return a.NonceVal
		}
	}
	fork := s.fork
	s.mu.RUnlock()
	if fork == nil {
		return Nonce{}
	}
	tx, err := fork.GetNonce(context.Background(), addr)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr.Hex()).Warn("state store: fork nonce lookup failed")
		return Nonce{}
	}
	n := Nonce{Tx: tx}
	s.mu.Lock()
	base := s.layers[0].getOrCreate(addr)
	if !base.nonceSet {
		base.NonceVal = n
		base.nonceSet = true
	}
	s.mu.Unlock()
	return n
}

func (s *StateStore) SetNonce(addr Address, n Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.top()
	acc := top.getOrCreate(addr)
	acc.NonceVal = n
	acc.nonceSet = true
	top.touch(addr, "nonce")
	return nil
}

// GetCode resolves addr's code hash (walking layers top-down, same as every
// other field) and dereferences it against the content-addressed bytecode
// table — never against the address directly, per §4.1's code_hashes /
// bytecodes split.
func (s *StateStore) GetCode(addr Address) []byte {
	s.mu.RLock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		a, ok := s.layers[i].accounts[addr]
		if !ok || !a.codeSet {
			continue
		}
		hash := a.CodeHash
		for j := i; j >= 0; j-- {
			if b, ok := s.layers[j].bytecodes[hash]; ok {
				s.mu.RUnlock()
				return append([]byte(nil), b...)
			}
		}
		s.mu.RUnlock()
		return nil
	}
	fork := s.fork
	s.mu.RUnlock()
	if fork == nil {
		return nil
	}
	code, err := fork.GetCode(context.Background(), addr)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr.Hex()).Warn("state store: fork code lookup failed")
		return nil
	}
	hash := hashBytes(code)
	s.mu.Lock()
	base := s.layers[0]
	acc := base.getOrCreate(addr)
	if !acc.codeSet {
		if base.bytecodes == nil {
			base.bytecodes = make(map[Hash][]byte)
		}
		if _, ok := base.bytecodes[hash]; !ok {
			base.bytecodes[hash] = append([]byte(nil), code...)
		}
		acc.CodeHash = hash
		acc.codeSet = true
	}
	s.mu.Unlock()
	return code
}

// SetCode points addr at code's content hash, publishing the bytes into the
// top layer's bytecode table if this is the first time this exact hash has
// been seen there (publishing is idempotent, per §4.1's edge-case policy).
func (s *StateStore) SetCode(addr Address, code []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := hashBytes(code)
	top := s.top()
	s.publishLocked(top, hash, code)
	acc := top.getOrCreate(addr)
	acc.CodeHash = hash
	acc.codeSet = true
	top.touch(addr, "codehash")
	return nil
}

func (s *StateStore) publishLocked(layer *stateLayer, hash Hash, code []byte) {
	if layer.bytecodes == nil {
		layer.bytecodes = make(map[Hash][]byte)
	}
	if _, ok := layer.bytecodes[hash]; !ok {
		layer.bytecodes[hash] = append([]byte(nil), code...)
	}
}

// PublishCode stores code under hash without attaching it to any address,
// the primitive behind a transaction's FactoryDeps: the bytecode becomes
// fetchable by hash immediately, before any account's code_hash points at
// it. Publishing the same hash twice is a no-op.
func (s *StateStore) PublishCode(hash Hash, code []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(s.top(), hash, code)
	return nil
}

// GetCodeByHash fetches previously published bytecode directly by its
// content hash, walking layers top-down like every other read.
func (s *StateStore) GetCodeByHash(hash Hash) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if b, ok := s.layers[i].bytecodes[hash]; ok {
			return append([]byte(nil), b...)
		}
	}
	return nil
}

// MarkFactoryDep records hash as a factory dependency, the marker a
// contract-creation transaction's FactoryDeps must set atomically with
// publishing so the bootloader can verify every dependency a constructor
// references was actually published.
func (s *StateStore) MarkFactoryDep(hash Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.top()
	if top.factoryDeps == nil {
		top.factoryDeps = make(map[Hash]bool)
	}
	top.factoryDeps[hash] = true
	return nil
}

// IsFactoryDep reports whether hash has been marked as a factory dependency
// in the current layer stack.
func (s *StateStore) IsFactoryDep(hash Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if s.layers[i].factoryDeps[hash] {
			return true
		}
	}
	return false
}

func (s *StateStore) GetCodeHash(addr Address) Hash {
	s.mu.RLock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if a, ok := s.layers[i].accounts[addr]; ok && a.codeSet {
			hash := a.CodeHash
			s.mu.RUnlock()
			return hash
		}
	}
	s.mu.RUnlock()
	code := s.GetCode(addr)
	if len(code) == 0 {
		return Hash{}
	}
	return hashBytes(code)
}

func (s *StateStore) GetStorage(addr Address, slot Hash) Hash {
	s.mu.RLock()
	for i := len(s.layers) - 1; i >= 0; i-- {
		if a, ok := s.layers[i].accounts[addr]; ok {
			if v, ok := a.Storage[slot]; ok {
				s.mu.RUnlock()
				return v
			}
		}
	}
	fork := s.fork
	s.mu.RUnlock()
	if fork == nil {
		return Hash{}
	}
	val, err := fork.GetStorageAt(context.Background(), addr, slot)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr.Hex()).Warn("state store: fork storage lookup failed")
		return Hash{}
	}
	s.mu.Lock()
	base := s.layers[0].getOrCreate(addr)
	if base.Storage == nil {
		base.Storage = make(map[Hash]Hash)
	}
	if _, ok := base.Storage[slot]; !ok {
		base.Storage[slot] = val
	}
	s.mu.Unlock()
	return val
}

func (s *StateStore) SetStorage(addr Address, slot Hash, val Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.top()
	acc := top.getOrCreate(addr)
	if acc.Storage == nil {
		acc.Storage = make(map[Hash]Hash)
	}
	acc.Storage[slot] = val
	top.touch(addr, "store:"+slot.Hex())
	return nil
}

// PrefixIterator returns accounts across all layers (topmost write wins)
// whose hex address begins with the given prefix, ordered by address. Used
// by debug_* RPCs that enumerate touched accounts.
func (s *StateStore) PrefixIterator(prefix []byte) StateIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[Address]bool{}
	var keys []Address
	for i := len(s.layers) - 1; i >= 0; i-- {
		for addr := range s.layers[i].accounts {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			if len(prefix) == 0 || hasHexPrefix(addr, prefix) {
				keys = append(keys, addr)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })
	return &addrIter{store: s, keys: keys, pos: -1}
}

func hasHexPrefix(addr Address, prefix []byte) bool {
	if len(prefix) > len(addr) {
		return false
	}
	for i := range prefix {
		if addr[i] != prefix[i] {
			return false
		}
	}
	return true
}

type addrIter struct {
	store *StateStore
	keys  []Address
	pos   int
}

func (it *addrIter) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *addrIter) Key() []byte { return it.keys[it.pos][:] }

func (it *addrIter) Value() []byte {
	bal := it.store.GetBalance(it.keys[it.pos])
	b := bal.Bytes32()
	return b[:]
}

func (it *addrIter) Error() error { return nil }

func hashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}
