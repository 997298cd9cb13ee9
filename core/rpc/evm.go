// evm_* debugging extensions manipulating the node's virtual clock and
// block production directly, independent of the anvil_*/hardhat_* aliases
// that wrap the same underlying core.TimeOracle/core.Sequencer calls.
package rpc

import "anvilzksync/core"

func init() {
	registerMethods(map[string]handlerFunc{
		"evm_mine":                   evmMine,
		"evm_increaseTime":           evmIncreaseTime,
		"evm_setNextBlockTimestamp":  evmSetNextBlockTimestamp,
		"evm_setTime":                evmSetTime,
		"evm_setIntervalMining":      evmSetIntervalMining,
		"evm_setAutomine":            evmSetAutomine,
		"evm_snapshot":               evmSnapshot,
		"evm_revert":                 evmRevert,
	})
}

func evmMine(n *Node, params []interface{}) (interface{}, error) {
	count := uint64(1)
	if v := paramAt(params, 0); v != nil {
		c, err := parseQuantity(v)
		if err != nil {
			return nil, core.NewError(core.KindValidation, "evm_mine", err.Error())
		}
		count = c
	}
	var interval int64
	if v := paramAt(params, 1); v != nil {
		iv, err := parseQuantity(v)
		if err != nil {
			return nil, core.NewError(core.KindValidation, "evm_mine", err.Error())
		}
		interval = int64(iv)
	}
	heads, err := n.seq.Mine(int(count), interval)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return hexUint64(0), nil
	}
	return heads[len(heads)-1].Hash.Hex(), nil
}

func evmIncreaseTime(n *Node, params []interface{}) (interface{}, error) {
	secs, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "evm_increaseTime", err.Error())
	}
	n.clock.Advance(int64(secs))
	return hexUint64(secs), nil
}

func evmSetNextBlockTimestamp(n *Node, params []interface{}) (interface{}, error) {
	ts, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "evm_setNextBlockTimestamp", err.Error())
	}
	if err := n.clock.SetNextTimestamp(int64(ts)); err != nil {
		return nil, err
	}
	return true, nil
}

func evmSetTime(n *Node, params []interface{}) (interface{}, error) {
	ts, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "evm_setTime", err.Error())
	}
	n.clock.SetTime(int64(ts))
	return true, nil
}

func evmSetIntervalMining(n *Node, params []interface{}) (interface{}, error) {
	secs, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "evm_setIntervalMining", err.Error())
	}
	if secs == 0 {
		n.clock.ClearInterval()
		return true, nil
	}
	if err := n.clock.SetInterval(int64(secs)); err != nil {
		return nil, err
	}
	return true, nil
}

func evmSetAutomine(n *Node, params []interface{}) (interface{}, error) {
	on, _ := paramAt(params, 0).(bool)
	n.seq.SetAutoMine(on)
	return true, nil
}

func evmSnapshot(n *Node, _ []interface{}) (interface{}, error) {
	id := n.snaps.Snapshot()
	return hexUint64(id), nil
}

func evmRevert(n *Node, params []interface{}) (interface{}, error) {
	id, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "evm_revert", err.Error())
	}
	ok := n.snaps.Revert(id)
	return ok, nil
}
