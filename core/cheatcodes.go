// Cheatcode & Override layer: privileged state mutations available both
// through direct VM interception (a contract CALLing CheatAddress) and
// through the RPC admin surface (anvil_*, hardhat_*, evm_*). There is
// exactly one Go method per operation — Dispatch only decodes the raw call
// input and forwards to it — so a contract-side cheat and an RPC-side
// cheat always observe identical behavior, per the node's design
// invariant that cheats and the admin API share one implementation.
//
// Overrides (etch'd code, dealt balances, active pranks) are tracked the
// same way the teacher's sandbox manager tracks live sandboxes: an
// in-memory map guarded by a mutex, no separate ledger entry, since an
// override's only audience is this running process.
package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// Cheat selectors, dispatched from the first 4 bytes of a call to
// CheatAddress. Values are arbitrary but stable for the lifetime of this
// node; they are not meant to match any external ABI.
const (
	selDeal       uint32 = 0x00000001
	selEtch       uint32 = 0x00000002
	selSetNonce   uint32 = 0x00000003
	selWarp       uint32 = 0x00000004
	selRoll       uint32 = 0x00000005
	selStartPrank uint32 = 0x00000006
	selStopPrank  uint32 = 0x00000007
	selLoad       uint32 = 0x00000008
	selGetNonce   uint32 = 0x00000009
	selAddr       uint32 = 0x0000000a
)

type prankOverride struct {
	sender Address
	origin Address
}

// CheatcodeRegistry holds the cheat-local state that does not belong to
// the State Store itself: active pranks (keyed by the transaction they
// apply to) and a record of which addresses have etch'd code, readable
// through IsEtched (no RPC handler consults it).
type CheatcodeRegistry struct {
	mu       sync.Mutex
	store    *StateStore
	clock    *TimeOracle
	pranks   map[Hash]*prankOverride
	etched   map[Address]bool
}

func NewCheatcodeRegistry(store *StateStore, clock *TimeOracle) *CheatcodeRegistry {
	return &CheatcodeRegistry{
		store:  store,
		clock:  clock,
		pranks: make(map[Hash]*prankOverride),
		etched: make(map[Address]bool),
	}
}

// Dispatch is the VM-side entry point: ctx.Tx.To == CheatAddress routes
// here before the interpreter ever runs. input is selector || args, args
// encoded as fixed 32-byte words (20-byte addresses right-aligned, same
// convention the LightVM interpreter uses for its stack words).
func (c *CheatcodeRegistry) Dispatch(ctx *VMContext, input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, NewError(KindEnvironment, "Dispatch", "cheat call missing selector")
	}
	sel := binary.BigEndian.Uint32(input[0:4])
	args := input[4:]
	word := func(i int) []byte {
		off := i * 32
		if off+32 > len(args) {
			return make([]byte, 32)
		}
		return args[off : off+32]
	}
	addrAt := func(i int) Address {
		var a Address
		copy(a[:], word(i)[12:])
		return a
	}

	switch sel {
	case selDeal:
		var amt Amount
		amt.SetBytes32(word(1))
		return nil, c.Deal(addrAt(0), &amt)
	case selEtch:
		return nil, c.Etch(addrAt(0), args[32:])
	case selSetNonce:
		var amt Amount
		amt.SetBytes32(word(1))
		return nil, c.SetNonce(addrAt(0), Nonce{Tx: amt.Uint64()})
	case selWarp:
		var amt Amount
		amt.SetBytes32(word(0))
		return nil, c.Warp(int64(amt.Uint64()))
	case selRoll:
		return nil, fmt.Errorf("roll must be issued through the sequencer, not a contract call")
	case selStartPrank:
		c.StartPrank(ctx.Tx.TxHash(), addrAt(0), addrAt(1))
		return nil, nil
	case selStopPrank:
		c.StopPrank(ctx.Tx.TxHash())
		return nil, nil
	case selLoad:
		var slot Hash
		copy(slot[:], word(1))
		val := c.Load(addrAt(0), slot)
		out := make([]byte, 32)
		copy(out, val[:])
		return out, nil
	case selGetNonce:
		n := c.GetNonce(addrAt(0))
		var amt Amount
		amt.SetUint64(n.Tx)
		b := amt.Bytes32()
		out := make([]byte, 32)
		copy(out, b[:])
		return out, nil
	case selAddr:
		var pk [32]byte
		copy(pk[:], word(0))
		a := c.DeriveAddress(pk)
		out := make([]byte, 32)
		copy(out[12:], a[:])
		return out, nil
	default:
		return nil, NewError(KindEnvironment, "Dispatch", fmt.Sprintf("unknown cheat selector 0x%08x", sel))
	}
}

// Deal sets addr's balance directly, bypassing transfer accounting.
func (c *CheatcodeRegistry) Deal(addr Address, amount *Amount) error {
	return c.store.SetBalance(addr, amount)
}

// Etch replaces addr's code, leaving any existing storage untouched —
// contracts deployed before the etch keep their prior slots readable,
// which matches how a test harness expects to drop in a mock
// implementation without losing fixture state.
func (c *CheatcodeRegistry) Etch(addr Address, code []byte) error {
	c.mu.Lock()
	c.etched[addr] = true
	c.mu.Unlock()
	return c.store.SetCode(addr, code)
}

// IsEtched reports whether addr's code was last set via Etch rather than
// a normal contract deployment.
func (c *CheatcodeRegistry) IsEtched(addr Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etched[addr]
}

// SetNonce writes addr's nonce directly. Cheatcodes are privileged:
// setting a nonce below the account's current value is accepted silently
// rather than rejected, unlike a normal state transition.
func (c *CheatcodeRegistry) SetNonce(addr Address, n Nonce) error {
	return c.store.SetNonce(addr, n)
}

// Warp sets the absolute timestamp of the very next sealed block (the
// evm_setNextBlockTimestamp override); the clock moves only when that
// block seals.
func (c *CheatcodeRegistry) Warp(ts int64) error {
	return c.clock.SetNextTimestamp(ts)
}

// Load reads a storage slot directly, the contract-callable counterpart of
// the admin-side storage inspection RPCs.
func (c *CheatcodeRegistry) Load(addr Address, slot Hash) Hash {
	return c.store.GetStorage(addr, slot)
}

// GetNonce reads addr's current (deploy, tx) nonce pair, exposed as a cheat
// so a test contract can assert on it without a separate RPC round trip.
func (c *CheatcodeRegistry) GetNonce(addr Address) Nonce {
	return c.store.GetNonce(addr)
}

// DeriveAddress computes the address a private key controls, the same
// sha256-digest scheme GenerateRichAccounts uses for the genesis accounts.
func (c *CheatcodeRegistry) DeriveAddress(pk [32]byte) Address {
	digest := sha256.Sum256(pk[:])
	var addr Address
	copy(addr[:], digest[:20])
	return addr
}

// StartPrank records a sender/origin override applying to subsequent calls
// within the transaction identified by txHash.
func (c *CheatcodeRegistry) StartPrank(txHash Hash, sender, origin Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pranks[txHash] = &prankOverride{sender: sender, origin: origin}
}

// StopPrank clears any active prank for txHash.
func (c *CheatcodeRegistry) StopPrank(txHash Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pranks, txHash)
}

// ActivePrank returns the prank override in effect for txHash, if any.
func (c *CheatcodeRegistry) ActivePrank(txHash Hash) *prankOverride {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pranks[txHash]
}
