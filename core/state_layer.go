package core

// stateLayer is one copy-on-write overlay in a StateStore's layer stack.
// Only fields actually written are marked *Set so a lower layer's value
// shows through untouched fields during a lookup.
type stateLayer struct {
	accounts    map[Address]*layerAccount
	touched     map[Address][]string // op tags, for WAL replay ordering
	bytecodes   map[Hash][]byte      // content-addressed code published in this layer
	factoryDeps map[Hash]bool        // hashes marked as factory dependencies in this layer
}

type layerAccount struct {
	Balance    *Amount
	balanceSet bool
	NonceVal   Nonce
	nonceSet   bool
	CodeHash   Hash
	codeSet    bool
	Storage    map[Hash]Hash
}

func newStateLayer() *stateLayer {
	return &stateLayer{
		accounts: make(map[Address]*layerAccount),
		touched:  make(map[Address][]string),
	}
}

func (l *stateLayer) getOrCreate(addr Address) *layerAccount {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &layerAccount{Balance: new(Amount)}
		l.accounts[addr] = acc
	}
	return acc
}

func (l *stateLayer) touch(addr Address, op string) {
	l.touched[addr] = append(l.touched[addr], op)
}

// mergeFrom folds src's writes into l, with src's values winning wherever
// both layers touched the same field — src is always the layer that was
// logically "above" l. Published bytecode and factory-dep markers are
// content-addressed and immutable, so merging them is a plain union: there
// is never a "winner" to pick, only a hash that either already exists below
// or needs to be copied down.
func (l *stateLayer) mergeFrom(src *stateLayer) {
	for addr, srcAcc := range src.accounts {
		dst := l.getOrCreate(addr)
		if srcAcc.balanceSet {
			dst.Balance = srcAcc.Balance
			dst.balanceSet = true
		}
		if srcAcc.nonceSet {
			dst.NonceVal = srcAcc.NonceVal
			dst.nonceSet = true
		}
		if srcAcc.codeSet {
			dst.CodeHash = srcAcc.CodeHash
			dst.codeSet = true
		}
		if len(srcAcc.Storage) > 0 {
			if dst.Storage == nil {
				dst.Storage = make(map[Hash]Hash, len(srcAcc.Storage))
			}
			for slot, val := range srcAcc.Storage {
				dst.Storage[slot] = val
			}
		}
	}
	for hash, code := range src.bytecodes {
		if l.bytecodes == nil {
			l.bytecodes = make(map[Hash][]byte, len(src.bytecodes))
		}
		if _, ok := l.bytecodes[hash]; !ok {
			l.bytecodes[hash] = code
		}
	}
	for hash := range src.factoryDeps {
		if l.factoryDeps == nil {
			l.factoryDeps = make(map[Hash]bool, len(src.factoryDeps))
		}
		l.factoryDeps[hash] = true
	}
}

// records flattens the layer into a sequence of WAL entries, in address
// iteration order. Order across different addresses is irrelevant since
// each key is independent; order within one address's storage writes does
// not matter either, since only the final value per slot is ever recorded.
// Published bytecode and factory-dep markers are hash-keyed rather than
// address-keyed, so they are flattened separately from the per-account
// entries.
func (l *stateLayer) records() []walRecord {
	var out []walRecord
	for addr, acc := range l.accounts {
		if acc.balanceSet {
			b := acc.Balance.Bytes32()
			out = append(out, walRecord{Op: "bal", Addr: addr, Bytes: b[:]})
		}
		if acc.nonceSet {
			out = append(out, walRecord{
				Op:   "nonce",
				Addr: addr,
				Text: fmtNonce(acc.NonceVal),
			})
		}
		if acc.codeSet {
			out = append(out, walRecord{Op: "codehash", Addr: addr, CodeHash: acc.CodeHash})
		}
		for slot, val := range acc.Storage {
			out = append(out, walRecord{Op: "store", Addr: addr, Slot: slot, Bytes: val[:]})
		}
	}
	for hash, code := range l.bytecodes {
		out = append(out, walRecord{Op: "bytecode", CodeHash: hash, Bytes: code})
	}
	for hash := range l.factoryDeps {
		out = append(out, walRecord{Op: "factorydep", CodeHash: hash})
	}
	return out
}

// applyRecord replays a single WAL entry during startup.
func (l *stateLayer) applyRecord(rec walRecord) {
	switch rec.Op {
	case "bal":
		acc := l.getOrCreate(rec.Addr)
		var b [32]byte
		copy(b[:], rec.Bytes)
		acc.Balance = new(Amount).SetBytes32(b[:])
		acc.balanceSet = true
	case "nonce":
		acc := l.getOrCreate(rec.Addr)
		acc.NonceVal = parseNonce(rec.Text)
		acc.nonceSet = true
	case "codehash":
		acc := l.getOrCreate(rec.Addr)
		acc.CodeHash = rec.CodeHash
		acc.codeSet = true
	case "store":
		acc := l.getOrCreate(rec.Addr)
		if acc.Storage == nil {
			acc.Storage = make(map[Hash]Hash)
		}
		var v Hash
		copy(v[:], rec.Bytes)
		acc.Storage[rec.Slot] = v
	case "bytecode":
		if l.bytecodes == nil {
			l.bytecodes = make(map[Hash][]byte)
		}
		l.bytecodes[rec.CodeHash] = rec.Bytes
	case "factorydep":
		if l.factoryDeps == nil {
			l.factoryDeps = make(map[Hash]bool)
		}
		l.factoryDeps[rec.CodeHash] = true
	}
}

func fmtNonce(n Nonce) string {
	return fmt32(n.Deploy) + ":" + fmt32(n.Tx)
}

func fmt32(v uint64) string {
	return fmtUint(v)
}

func fmtUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func parseNonce(s string) Nonce {
	var deploy, tx uint64
	sep := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Nonce{}
	}
	deploy = parseUint(s[:sep])
	tx = parseUint(s[sep+1:])
	return Nonce{Deploy: deploy, Tx: tx}
}

func parseUint(s string) uint64 {
	var v uint64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return v
		}
		v = v*10 + uint64(s[i]-'0')
	}
	return v
}
