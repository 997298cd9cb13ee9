package rpc

import (
	"anvilzksync/core"
)

// runCall executes callParams against a disposable state-store layer in the
// given mode; the layer is always discarded, so eth_call and estimateGas
// never commit, per the node's mode contract.
func (n *Node) runCall(callParams interface{}, mode core.ExecMode) (*core.ExecResult, error) {
	tx, err := decodeTxCall(callParams)
	if err != nil {
		return nil, core.NewError(core.KindValidation, "runCall", err.Error())
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	n.store.PushLayer()
	defer n.store.DiscardTop()

	res := core.Execute(tx, n.store, mode, n.cheats)
	if res.Halted {
		return nil, core.NewError(core.KindValidation, "runCall", res.RevertReason)
	}
	if !res.Status {
		return res, core.NewError(core.KindRevert, "runCall", res.RevertReason)
	}
	return res, nil
}

// estimateGas binary-searches the smallest gas limit producing a successful
// execution, never committing any state change it observes along the way.
func (n *Node) estimateGas(callParams interface{}) (uint64, error) {
	tx, err := decodeTxCall(callParams)
	if err != nil {
		return 0, core.NewError(core.KindValidation, "estimateGas", err.Error())
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	lo, hi := core.IntrinsicGas(tx), tx.GasLimit
	if hi < lo {
		hi = defaultCallGas
	}

	try := func(limit uint64) bool {
		t := *tx
		t.GasLimit = limit
		t.ResetHashCache()
		n.store.PushLayer()
		defer n.store.DiscardTop()
		res := core.Execute(&t, n.store, core.ModeEstimateGas, n.cheats)
		return !res.Halted && res.Status
	}

	if !try(hi) {
		return 0, core.NewError(core.KindValidation, "estimateGas", "transaction reverts even at the gas limit ceiling")
	}
	for lo < hi {
		mid := lo + (hi-lo)/2
		if try(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return hi, nil
}
