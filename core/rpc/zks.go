// zks_* rollup extensions layered on top of the same Node surface eth_* and
// anvil_* use — this node seals at most one block per L1 batch, so a batch
// number and its sole block number always coincide.
package rpc

import "anvilzksync/core"

func init() {
	registerMethods(map[string]handlerFunc{
		"zks_L1ChainId":           zksL1ChainID,
		"zks_estimateFee":         zksEstimateFee,
		"zks_getTokenPrice":       zksGetTokenPrice,
		"zks_getBlockDetails":     zksGetBlockDetails,
		"zks_getTransactionDetails": zksGetTransactionDetails,
	})
}

func zksL1ChainID(n *Node, _ []interface{}) (interface{}, error) {
	return hexUint64(n.chainID), nil
}

func zksEstimateFee(n *Node, params []interface{}) (interface{}, error) {
	gas, err := n.estimateGas(paramAt(params, 0))
	if err != nil {
		return nil, err
	}
	baseFee := n.fees.CurrentBaseFee()
	return map[string]interface{}{
		"gas_limit":              hexUint64(gas),
		"max_fee_per_gas":        hexAmount(baseFee),
		"max_priority_fee_per_gas": "0x0",
		"gas_per_pubdata_limit":  hexUint64(800),
	}, nil
}

// zksGetTokenPrice reports a fixed price for the native token; this node
// has no price oracle collaborator, matching spec.md's "optional" framing
// of this method.
func zksGetTokenPrice(n *Node, _ []interface{}) (interface{}, error) {
	return "1.00", nil
}

func zksGetBlockDetails(n *Node, params []interface{}) (interface{}, error) {
	num, err := parseQuantity(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "zks_getBlockDetails", err.Error())
	}
	rec := n.index.ByNumber(num)
	if rec == nil {
		return nil, nil
	}
	return map[string]interface{}{
		"number":        hexUint64(rec.Header.Number),
		"l1BatchNumber": hexUint64(rec.Header.L1BatchNumber),
		"timestamp":     hexUint64(uint64(rec.Header.Timestamp)),
		"status":        "verified",
	}, nil
}

func zksGetTransactionDetails(n *Node, params []interface{}) (interface{}, error) {
	h, err := parseHash(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "zks_getTransactionDetails", err.Error())
	}
	r := n.index.ReceiptByTxHash(h)
	if r == nil {
		return nil, nil
	}
	return map[string]interface{}{
		"txHash":        r.TxHash.Hex(),
		"l1BatchNumber": hexUint64(r.L1BatchNumber),
		"status":        statusLabel(r.Status),
	}, nil
}

func statusLabel(ok bool) string {
	if ok {
		return "included"
	}
	return "failed"
}
