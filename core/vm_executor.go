// VM Executor: the single entry point the Sequencer and RPC layer call to
// run one transaction. It intercepts calls to the fixed cheat address
// before any tier-specific interpreter sees them, then hands everything
// else to SelectVM's chosen tier. This is the only place that knows about
// both cheats and normal execution, keeping vm.go free of cheat-specific
// branching.
package core

import "crypto/sha256"

// Execute runs tx against state under mode, charging gas from
// tx.GasLimit. A nil *Amount Value is treated as zero.
func Execute(tx *Transaction, state StateRW, mode ExecMode, cheats *CheatcodeRegistry) *ExecResult {
	if tx.Value == nil {
		tx.Value = new(Amount)
	}

	intrinsic := IntrinsicGas(tx)
	if tx.GasLimit < intrinsic {
		return &ExecResult{Halted: true, RevertReason: "intrinsic gas exceeds limit"}
	}

	if tx.To != nil && *tx.To == CheatAddress {
		ctx := &VMContext{Tx: tx, State: state, Mode: mode, GasLimit: tx.GasLimit - intrinsic, Cheats: cheats}
		out, err := cheats.Dispatch(ctx, tx.Data)
		res := &ExecResult{Status: err == nil, GasUsed: intrinsic, ReturnData: out}
		if err != nil {
			res.RevertReason = err.Error()
		}
		return res
	}

	if !checkBalance(tx, state) {
		return &ExecResult{Halted: true, RevertReason: "insufficient balance for value transfer"}
	}

	// FactoryDeps must be published atomically with the transaction that
	// references them (§4.1/§4.7); marking failure is a halt, a
	// system-level precondition rather than something the contract itself
	// decided.
	for _, dep := range tx.FactoryDeps {
		if err := state.MarkFactoryDep(dep); err != nil {
			return &ExecResult{Halted: true, RevertReason: "factory-deps marking failed: " + err.Error()}
		}
	}

	var res *ExecResult
	var createdAddr *Address
	switch {
	case tx.Type == TxCreate:
		addr := deriveCreateAddress(tx.From, tx.Nonce)
		createdAddr = &addr
		if err := state.PublishCode(hashBytes(tx.Data), tx.Data); err != nil {
			return &ExecResult{Halted: true, RevertReason: "publish code failed: " + err.Error()}
		}
		if err := state.SetCode(addr, tx.Data); err != nil {
			return &ExecResult{Halted: true, RevertReason: "deploy failed: " + err.Error()}
		}
		// The constructor needs to see its own address as trace.To (for
		// SSTORE/SLOAD/BALANCE), but tx.To is nil for a creation — run the
		// VM against a shallow copy with To filled in rather than mutating
		// the caller's Transaction.
		ctorTx := *tx
		ctorTx.To = &addr
		ctx := &VMContext{Tx: &ctorTx, Code: tx.Data, State: state, Mode: mode, GasLimit: tx.GasLimit - intrinsic, Cheats: cheats}
		if cheats != nil {
			ctx.prank = cheats.ActivePrank(tx.TxHash())
		}
		res = SelectVM(tx.Data).Execute(ctx)
		res.GasUsed += intrinsic
		if res.Trace != nil {
			res.Trace.Kind = "CREATE"
			res.Trace.To = addr
		}
	case tx.Type == TxCall && len(tx.Data) > 0:
		var code []byte
		if tx.To != nil {
			code = state.GetCode(*tx.To)
		}
		if len(code) == 0 {
			res = (&SuperLightVM{}).Execute(&VMContext{Tx: tx, State: state, Mode: mode, GasLimit: tx.GasLimit - intrinsic})
			break
		}
		ctx := &VMContext{Tx: tx, Code: code, State: state, Mode: mode, GasLimit: tx.GasLimit - intrinsic, Cheats: cheats}
		if cheats != nil {
			ctx.prank = cheats.ActivePrank(tx.TxHash())
		}
		res = SelectVM(code).Execute(ctx)
		res.GasUsed += intrinsic
	default:
		res = (&SuperLightVM{}).Execute(&VMContext{Tx: tx, State: state, Mode: mode, GasLimit: tx.GasLimit - intrinsic})
	}

	if res.Status {
		res.CreatedAddr = createdAddr
	}

	recipient := tx.To
	if createdAddr != nil {
		recipient = createdAddr
	}
	if res.Status && mode == ModeNormal && recipient != nil && !tx.Value.IsZero() {
		if err := state.SubBalance(tx.From, tx.Value); err == nil {
			state.AddBalance(*recipient, tx.Value)
		}
	}
	return res
}

// deriveCreateAddress computes the address a TxCreate transaction deploys
// to: a digest of the sender and the transaction's own nonce, the same
// sha256-over-concatenated-fields convention TxHash and computeBlockHash
// already use in place of a real chain's keccak/RLP encoding.
func deriveCreateAddress(sender Address, nonce uint64) Address {
	buf := make([]byte, 0, 20+8)
	buf = append(buf, sender[:]...)
	buf = appendUint64(buf, nonce)
	digest := sha256.Sum256(buf)
	var addr Address
	copy(addr[:], digest[:20])
	return addr
}

func checkBalance(tx *Transaction, state StateRW) bool {
	if tx.Value == nil || tx.Value.IsZero() {
		return true
	}
	bal := state.GetBalance(tx.From)
	return bal.Cmp(tx.Value) >= 0
}
