package rpc

import (
	"fmt"

	"anvilzksync/core"
)

func init() {
	registerMethods(map[string]handlerFunc{
		"eth_chainId":                     ethChainID,
		"eth_blockNumber":                 ethBlockNumber,
		"eth_gasPrice":                    ethGasPrice,
		"eth_getBalance":                  ethGetBalance,
		"eth_getCode":                     ethGetCode,
		"eth_getTransactionCount":         ethGetTransactionCount,
		"eth_getTransactionReceipt":       ethGetTransactionReceipt,
		"eth_getTransactionByHash":        ethGetTransactionByHash,
		"eth_getBlockByNumber":            ethGetBlockByNumber,
		"eth_getBlockByHash":              ethGetBlockByHash,
		"eth_call":                       ethCall,
		"eth_sendRawTransaction":          ethSendRawTransaction,
		"eth_sendTransaction":             ethSendRawTransaction,
		"eth_syncing":                     ethSyncing,
		"eth_accounts":                    ethAccounts,
		"eth_estimateGas":                 ethEstimateGas,
		"eth_setNextBlockTimestamp":       evmSetNextBlockTimestamp,
	})
}

func ethChainID(n *Node, _ []interface{}) (interface{}, error) {
	return hexUint64(n.chainID), nil
}

func ethBlockNumber(n *Node, _ []interface{}) (interface{}, error) {
	head := n.index.Head()
	if head == nil {
		return hexUint64(0), nil
	}
	return hexUint64(head.Number), nil
}

func ethGasPrice(n *Node, _ []interface{}) (interface{}, error) {
	return hexAmount(n.fees.CurrentBaseFee()), nil
}

func ethGetBalance(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getBalance", err.Error())
	}
	return hexAmount(n.store.GetBalance(addr)), nil
}

func ethGetCode(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getCode", err.Error())
	}
	return hexBytes(n.store.GetCode(addr)), nil
}

func ethGetTransactionCount(n *Node, params []interface{}) (interface{}, error) {
	addr, err := parseAddress(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getTransactionCount", err.Error())
	}
	return hexUint64(n.store.GetNonce(addr).Tx), nil
}

func ethGetTransactionReceipt(n *Node, params []interface{}) (interface{}, error) {
	h, err := parseHash(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getTransactionReceipt", err.Error())
	}
	r := n.index.ReceiptByTxHash(h)
	if r == nil {
		return nil, nil
	}
	return receiptView(r), nil
}

func ethGetTransactionByHash(n *Node, params []interface{}) (interface{}, error) {
	h, err := parseHash(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getTransactionByHash", err.Error())
	}
	r := n.index.ReceiptByTxHash(h)
	if r == nil {
		return nil, nil
	}
	return map[string]interface{}{
		"hash":        r.TxHash.Hex(),
		"blockNumber": hexUint64(r.BlockNumber),
		"blockHash":   r.BlockHash.Hex(),
	}, nil
}

func ethGetBlockByNumber(n *Node, params []interface{}) (interface{}, error) {
	num, err := blockNumberParam(n, paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getBlockByNumber", err.Error())
	}
	rec := n.index.ByNumber(num)
	if rec == nil {
		return nil, nil
	}
	return blockView(rec.Header), nil
}

func ethGetBlockByHash(n *Node, params []interface{}) (interface{}, error) {
	h, err := parseHash(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_getBlockByHash", err.Error())
	}
	rec := n.index.ByHash(h)
	if rec == nil {
		return nil, nil
	}
	return blockView(rec.Header), nil
}

func ethCall(n *Node, params []interface{}) (interface{}, error) {
	res, err := n.runCall(paramAt(params, 0), core.ModeEthCall)
	if err != nil {
		return nil, err
	}
	return hexBytes(res.ReturnData), nil
}

func ethEstimateGas(n *Node, params []interface{}) (interface{}, error) {
	gas, err := n.estimateGas(paramAt(params, 0))
	if err != nil {
		return nil, err
	}
	return hexUint64(gas), nil
}

func ethSendRawTransaction(n *Node, params []interface{}) (interface{}, error) {
	tx, err := decodeTxCall(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "eth_sendRawTransaction", err.Error())
	}
	h, err := n.seq.SubmitTx(tx)
	if err != nil {
		return nil, err
	}
	return h.Hex(), nil
}

func ethSyncing(n *Node, _ []interface{}) (interface{}, error) { return false, nil }

func ethAccounts(n *Node, _ []interface{}) (interface{}, error) {
	out := make([]string, 0, len(n.rich))
	for _, a := range n.rich {
		out = append(out, a.Address.Hex())
	}
	return out, nil
}

func blockNumberParam(n *Node, v interface{}) (uint64, error) {
	if v == nil {
		return n.index.Len(), nil
	}
	s, ok := v.(string)
	if ok && (s == "latest" || s == "pending") {
		return n.index.Len(), nil
	}
	if ok && s == "earliest" {
		return 0, nil
	}
	return parseQuantity(v)
}

func blockView(h *core.BlockHeader) map[string]interface{} {
	hashes := make([]string, 0, len(h.TxHashes))
	for _, t := range h.TxHashes {
		hashes = append(hashes, t.Hex())
	}
	return map[string]interface{}{
		"number":        hexUint64(h.Number),
		"hash":          h.Hash.Hex(),
		"parentHash":    h.ParentHash.Hex(),
		"timestamp":     hexUint64(uint64(h.Timestamp)),
		"baseFeePerGas": hexAmount(h.BaseFee),
		"gasLimit":      hexUint64(h.GasLimit),
		"gasUsed":       hexUint64(h.GasUsed),
		"l1BatchNumber": hexUint64(h.L1BatchNumber),
		"transactions":  hashes,
	}
}

func receiptView(r *core.Receipt) map[string]interface{} {
	status := "0x0"
	if r.Status {
		status = "0x1"
	}
	out := map[string]interface{}{
		"transactionHash":   r.TxHash.Hex(),
		"status":            status,
		"gasUsed":           hexUint64(r.GasUsed),
		"effectiveGasPrice": hexAmount(r.EffectiveGasPrice),
		"blockNumber":       hexUint64(r.BlockNumber),
		"blockHash":         r.BlockHash.Hex(),
		"l1BatchNumber":     hexUint64(r.L1BatchNumber),
		"transactionIndex":  hexUint64(uint64(r.TransactionIndex)),
	}
	if r.RevertReason != "" {
		out["revertReason"] = r.RevertReason
	}
	if r.ContractAddress != nil {
		out["contractAddress"] = r.ContractAddress.Hex()
	}
	return out
}

func decodeTxCall(v interface{}) (*core.Transaction, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a transaction object")
	}
	tx := &core.Transaction{Type: core.TxCall}
	if from, ok := m["from"]; ok {
		addr, err := parseAddress(from)
		if err != nil {
			return nil, err
		}
		tx.From = addr
	}
	if to, ok := m["to"]; ok && to != nil {
		addr, err := parseAddress(to)
		if err != nil {
			return nil, err
		}
		tx.To = &addr
	} else {
		tx.Type = core.TxCreate
	}
	if val, ok := m["value"]; ok {
		amt, err := parseAmount(val)
		if err != nil {
			return nil, err
		}
		tx.Value = amt
	}
	if gas, ok := m["gas"]; ok {
		g, err := parseQuantity(gas)
		if err != nil {
			return nil, err
		}
		tx.GasLimit = g
	} else {
		tx.GasLimit = defaultCallGas
	}
	if data, ok := m["data"]; ok {
		b, err := parseBytes(data)
		if err != nil {
			return nil, err
		}
		tx.Data = b
	} else if input, ok := m["input"]; ok {
		b, err := parseBytes(input)
		if err != nil {
			return nil, err
		}
		tx.Data = b
	}
	if nonce, ok := m["nonce"]; ok {
		nv, err := parseQuantity(nonce)
		if err != nil {
			return nil, err
		}
		tx.Nonce = nv
	}
	return tx, nil
}
