package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Address is a 20-byte account identifier, mirroring an Ethereum-style
// address so existing tooling (go-ethereum's abi/rlp packages) can operate
// on it directly via FromCommon/ToCommon.
type Address [20]byte

// Hash is a 32-byte cryptographic digest: block hash, transaction hash, or
// storage slot index.
type Hash [32]byte

// Amount is a 256-bit unsigned integer used for balances, values and gas
// prices. uint256.Int is already an indirect dependency pulled in by
// go-ethereum; we promote it to a direct one instead of reaching for
// math/big, matching the fixed-width, allocation-free arithmetic the VM
// needs on its hot path.
type Amount = uint256.Int

// ErrAmountOverflow is returned when a balance write would exceed 2^256-1.
var ErrAmountOverflow = fmt.Errorf("amount overflow")

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// ToCommon converts an Address to a go-ethereum common.Address.
func (a Address) ToCommon() common.Address { return common.Address(a) }

// FromCommon converts a go-ethereum common.Address into an Address.
func FromCommon(a common.Address) Address {
	var out Address
	copy(out[:], a.Bytes())
	return out
}

// MarshalText renders the address as 0x-prefixed hex, letting it serve as a
// JSON object key (json.Marshal requires TextMarshaler for non-string map
// keys).
func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

// UnmarshalText parses the 0x-prefixed hex form produced by MarshalText.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex string.
func ParseAddress(s string) (Address, error) {
	var out Address
	b, err := decodeHexFlexible(s, 20)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalText renders the hash as 0x-prefixed hex, letting it serve as a
// JSON object key.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText parses the 0x-prefixed hex form produced by MarshalText.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 0x-prefixed 32-byte hex string.
func ParseHash(s string) (Hash, error) {
	var out Hash
	b, err := decodeHexFlexible(s, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func decodeHexFlexible(s string, wantLen int) ([]byte, error) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}

// AddressZero is the sentinel zero address, used as the cheatcode dispatch
// miss value and as the default "no contract" recipient marker.
var AddressZero = Address{}

// CheatAddress is the fixed address intercepted by the cheatcode layer
// (see cheatcodes.go). It matches the well-known VM-test-kit cheat address.
var CheatAddress = mustParseAddress("0x7109709ECfa91a80626fF3989D68f67F5b1DD12D")

func mustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Nonce tracks the two independent counters the data model assigns to an
// account: the number of contracts it has deployed and the number of
// transactions it has sent.
type Nonce struct {
	Deploy uint64 `json:"deploy"`
	Tx     uint64 `json:"tx"`
}

// TxType distinguishes plain value transfers from contract-creation and
// contract-call transactions.
type TxType uint8

const (
	TxTransfer TxType = iota
	TxCall
	TxCreate
)

// Transaction is the unit of work accepted by the Mempool and executed by
// the VM Executor. FactoryDeps carries bytecode hashes that must be
// published (marked as factory dependencies) atomically with this
// transaction, mirroring zkSync's "factory deps" deployment mechanism.
type Transaction struct {
	Type                 TxType   `json:"type"`
	From                 Address  `json:"from"`
	To                   *Address `json:"to,omitempty"` // nil for contract creation
	Nonce                uint64   `json:"nonce"`
	Value                *Amount  `json:"value"`
	GasLimit             uint64   `json:"gasLimit"`
	MaxFeePerGas         *Amount  `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *Amount  `json:"maxPriorityFeePerGas"`
	Data                 []byte   `json:"data,omitempty"`
	FactoryDeps          []Hash   `json:"factoryDeps,omitempty"`
	Signature            []byte   `json:"signature,omitempty"`

	hash *Hash
}

// Hash returns the (cached) transaction hash, computed as the keccak-style
// sha256 digest of the canonical fields. Real signing schemes are out of
// scope; this is sufficient to give every submitted transaction a stable,
// content-addressed identifier.
func (tx *Transaction) TxHash() Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	buf := make([]byte, 0, 128)
	buf = append(buf, tx.From[:]...)
	if tx.To != nil {
		buf = append(buf, tx.To[:]...)
	}
	buf = appendUint64(buf, tx.Nonce)
	if tx.Value != nil {
		b := tx.Value.Bytes32()
		buf = append(buf, b[:]...)
	}
	buf = appendUint64(buf, tx.GasLimit)
	buf = append(buf, tx.Data...)
	for _, d := range tx.FactoryDeps {
		buf = append(buf, d[:]...)
	}
	h := sha256.Sum256(buf)
	out := Hash(h)
	tx.hash = &out
	return out
}

// ResetHashCache clears the cached transaction hash, used when a caller
// mutates a copy of a Transaction (e.g. estimateGas probing different gas
// limits) and needs TxHash to reflect the new fields.
func (tx *Transaction) ResetHashCache() { tx.hash = nil }

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
	return append(buf, b[:]...)
}

// Log is an event emitted during VM execution.
type Log struct {
	Address Address  `json:"address"`
	Topics  []Hash   `json:"topics"`
	Data    []byte   `json:"data"`
	TxHash  Hash     `json:"txHash"`
	BlockNo uint64   `json:"blockNumber"`
	Index   uint32   `json:"logIndex"`
	_       struct{} // reserved for future removed/reorg marker
}

// CallFrame is one node of the hierarchical execution trace produced by the
// VM Executor: the caller/callee, its input/output, and any nested calls.
type CallFrame struct {
	Kind     string       `json:"type"` // CALL, STATICCALL, DELEGATECALL, CREATE
	From     Address      `json:"from"`
	To       Address      `json:"to"`
	Input    []byte       `json:"input,omitempty"`
	Output   []byte       `json:"output,omitempty"`
	GasUsed  uint64       `json:"gasUsed"`
	Value    *Amount      `json:"value,omitempty"`
	Error    string       `json:"error,omitempty"`
	Calls    []*CallFrame `json:"calls,omitempty"`
}

// Receipt is the immutable outcome of including a transaction in a sealed
// block.
type Receipt struct {
	TxHash            Hash    `json:"transactionHash"`
	Status            bool    `json:"status"` // true: success, false: reverted
	GasUsed           uint64  `json:"gasUsed"`
	EffectiveGasPrice *Amount `json:"effectiveGasPrice"`
	ContractAddress   *Address `json:"contractAddress,omitempty"`
	Logs              []Log   `json:"logs"`
	RevertReason      string  `json:"revertReason,omitempty"`
	ReturnData        []byte  `json:"returnData,omitempty"`
	BlockNumber       uint64  `json:"blockNumber"`
	BlockHash         Hash    `json:"blockHash"`
	L1BatchNumber     uint64  `json:"l1BatchNumber"`
	TransactionIndex  uint32  `json:"transactionIndex"`
}

// BlockHeader is the immutable, sealed metadata for one produced block.
type BlockHeader struct {
	Number        uint64  `json:"number"`
	Hash          Hash    `json:"hash"`
	ParentHash    Hash    `json:"parentHash"`
	Timestamp     int64   `json:"timestamp"`
	BaseFee       *Amount `json:"baseFeePerGas"`
	GasLimit      uint64  `json:"gasLimit"`
	GasUsed       uint64  `json:"gasUsed"`
	L1BatchNumber uint64  `json:"l1BatchNumber"`
	TxHashes      []Hash  `json:"transactions"`
}

// L1Batch groups one or more sealed blocks destined for a single L1
// commitment. This node seals at most one block per batch (§3 invariant).
type L1Batch struct {
	Number       uint64   `json:"number"`
	BlockNumbers []uint64 `json:"blockNumbers"`
	Committed    bool     `json:"committed"`
	CommitHash   Hash     `json:"commitHash"`
}

// RichAccount is one of the ten well-known, pre-funded genesis accounts.
type RichAccount struct {
	Address    Address
	PrivateKey [32]byte
}

// genesisTimestamp anchors the virtual clock's starting value.
var genesisTimestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

func computeBlockHash(h *BlockHeader) Hash {
	buf := make([]byte, 0, 64)
	buf = appendUint64(buf, h.Number)
	buf = append(buf, h.ParentHash[:]...)
	buf = appendUint64(buf, uint64(h.Timestamp))
	for _, t := range h.TxHashes {
		buf = append(buf, t[:]...)
	}
	return sha256.Sum256(buf)
}
