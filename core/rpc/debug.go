// debug_* tracing surface: replays or looks up the call frame the
// sequencer recorded when a transaction was sealed. debug_traceCall runs a
// fresh speculative call through the same disposable-layer path eth_call
// uses; debug_traceTransaction/debug_traceBlockByNumber read back the
// frame the Chain Index already stored at seal time rather than
// re-executing history, since this node keeps no per-block state
// checkpoints to replay against.
package rpc

import "anvilzksync/core"

func init() {
	registerMethods(map[string]handlerFunc{
		"debug_traceCall":        debugTraceCall,
		"debug_traceTransaction": debugTraceTransaction,
		"debug_traceBlockByNumber": debugTraceBlockByNumber,
	})
}

func debugTraceCall(n *Node, params []interface{}) (interface{}, error) {
	res, err := n.runCall(paramAt(params, 0), core.ModeEthCall)
	if err != nil {
		if res == nil {
			return nil, err
		}
	}
	return traceView(res), nil
}

func debugTraceTransaction(n *Node, params []interface{}) (interface{}, error) {
	h, err := parseHash(paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "debug_traceTransaction", err.Error())
	}
	frame := n.index.TraceByTxHash(h)
	if frame == nil {
		r := n.index.ReceiptByTxHash(h)
		if r == nil {
			return nil, core.NewError(core.KindValidation, "debug_traceTransaction", "unknown transaction")
		}
		return map[string]interface{}{
			"type":    "TRANSFER",
			"gasUsed": hexUint64(r.GasUsed),
		}, nil
	}
	return callFrameView(frame), nil
}

func debugTraceBlockByNumber(n *Node, params []interface{}) (interface{}, error) {
	num, err := blockNumberParam(n, paramAt(params, 0))
	if err != nil {
		return nil, core.NewError(core.KindValidation, "debug_traceBlockByNumber", err.Error())
	}
	rec := n.index.ByNumber(num)
	if rec == nil {
		return nil, core.NewError(core.KindValidation, "debug_traceBlockByNumber", "unknown block")
	}
	out := make([]map[string]interface{}, 0, len(rec.Header.TxHashes))
	for _, h := range rec.Header.TxHashes {
		frame := n.index.TraceByTxHash(h)
		out = append(out, map[string]interface{}{
			"txHash": h.Hex(),
			"result": callFrameView(frame),
		})
	}
	return out, nil
}

func traceView(res *core.ExecResult) map[string]interface{} {
	if res == nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{
		"gasUsed":    hexUint64(res.GasUsed),
		"returnData": hexBytes(res.ReturnData),
		"status":     res.Status,
	}
	if res.RevertReason != "" {
		out["revertReason"] = res.RevertReason
	}
	if res.Trace != nil {
		out["calls"] = callFrameView(res.Trace)
	}
	return out
}

func callFrameView(f *core.CallFrame) map[string]interface{} {
	if f == nil {
		return nil
	}
	calls := make([]map[string]interface{}, 0, len(f.Calls))
	for _, c := range f.Calls {
		calls = append(calls, callFrameView(c))
	}
	out := map[string]interface{}{
		"type":    f.Kind,
		"from":    f.From.Hex(),
		"to":      f.To.Hex(),
		"input":   hexBytes(f.Input),
		"output":  hexBytes(f.Output),
		"gasUsed": hexUint64(f.GasUsed),
		"calls":   calls,
	}
	if f.Value != nil {
		out["value"] = hexAmount(f.Value)
	}
	if f.Error != "" {
		out["error"] = f.Error
	}
	return out
}
