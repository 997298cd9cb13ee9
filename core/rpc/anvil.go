// anvil_* admin surface: direct state overrides, clock/block-production
// control, impersonation and snapshotting. Every handler here is a thin
// decode-and-forward onto core.StateStore/core.TimeOracle/core.FeeOracle/
// core.Mempool/core.SnapshotManager — the same collaborators evm_* and a
// contract-side cheatcode call ultimately reach, per the node's
// one-implementation-per-operation rule.
package rpc

import "anvilzksync/core"

func init() {
	registerMethods(map[string]handlerFunc{
		"anvil_setBalance":                  anvilSetBalance,
		"anvil_setNonce":                    anvilSetNonce,
		"anvil_setCode":                     anvilSetCode,
		"anvil_setStorageAt":                anvilSetStorageAt,
		"anvil_setNextBlockBaseFeePerGas":    anvilSetNextBlockBaseFeePerGas,
		"anvil_setBlockTimestampInterval":    anvilSetBlockTimestampInterval,
		"anvil_removeBlockTimestampInterval": anvilRemoveBlockTimestampInterval,
		"anvil_setTime":                      evmSetTime,
		"anvil_setNextBlockTimestamp":        evmSetNextBlockTimestamp,
		"anvil_increaseTime":                 evmIncreaseTime,
		"anvil_mine":                         evmMine,
		"anvil_impersonateAccount":           anvilImpersonateAccount,
		"anvil_stopImpersonatingAccount":     anvilStopImpersonatingAccount,
		"anvil_autoImpersonateAccount":       anvilAutoImpersonateAccount,
		"anvil_snapshot":                     evmSnapshot,
		"anvil_revert":                       evmRevert,
		"anvil_setLoggingEnabled":            anvilSetLoggingEnabled,
	})
}

func anvilSetBalance(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setBalance", err.Error())
	}
	amt, err := parseAmount(paramAt(params, 1))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setBalance", err.Error())
	}
	if err := n.store.SetBalance(addr, amt); err != nil {
		return nil, err
	}
	return true, nil
}

func anvilSetNonce(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setNonce", err.Error())
	}
	nv, err := parseQuantity(paramAt(params, 1))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setNonce", err.Error())
	}
	cur := n.store.GetNonce(addr)
	cur.Tx = nv
	if err := n.store.SetNonce(addr, cur); err != nil {
		return nil, err
	}
	return true, nil
}

func anvilSetCode(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setCode", err.Error())
	}
	code, err := parseBytes(paramAt(params, 1))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setCode", err.Error())
	}
	if err := n.cheats.Etch(addr, code); err != nil {
		return nil, err
	}
	return true, nil
}

func anvilSetStorageAt(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setStorageAt", err.Error())
	}
	slot, err := parseHash(paramAt(params, 1))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setStorageAt", err.Error())
	}
	val, err := parseHash(paramAt(params, 2))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setStorageAt", err.Error())
	}
	if err := n.store.SetStorage(addr, slot, val); err != nil {
		return nil, err
	}
	return true, nil
}

func anvilSetNextBlockBaseFeePerGas(n *Node, params []interface{}) (interface{}, error) {
	amt, err := parseAmount(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setNextBlockBaseFeePerGas", err.Error())
	}
	n.fees.SetNextBaseFee(amt)
	return true, nil
}

func anvilSetBlockTimestampInterval(n *Node, params []interface{}) (interface{}, error) {
	secs, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_setBlockTimestampInterval", err.Error())
	}
	if err := n.clock.SetInterval(int64(secs)); err != nil {
		return nil, err
	}
	return true, nil
}

func anvilRemoveBlockTimestampInterval(n *Node, _ []interface{}) (interface{}, error) {
	n.clock.ClearInterval()
	return true, nil
}

func anvilImpersonateAccount(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_impersonateAccount", err.Error())
	}
	n.pool.Impersonate(addr)
	return true, nil
}

func anvilStopImpersonatingAccount(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "anvil_stopImpersonatingAccount", err.Error())
	}
	n.pool.StopImpersonating(addr)
	return true, nil
}

func anvilAutoImpersonateAccount(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.pool.SetAutoImpersonate(on)
	return true, nil
}

func anvilSetLoggingEnabled(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.mu.Lock()
	n.loggingEnabled = on
	n.mu.Unlock()
	return true, nil
}
