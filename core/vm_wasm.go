// Heavy tier: executes WASM-dialect bytecode through wasmer-go. The host
// module exposes storage reads/writes and a gas meter as wasm imports
// (host_sload, host_sstore, host_consume_gas) so a compiled contract can
// call back into the State Store; balance is not exposed.
package core

import (
	"github.com/wasmerio/wasmer-go/wasmer"
)

type wasmHostCtx struct {
	mem   *wasmer.Memory
	state StateRW
	addr  Address
	gas   uint64
	used  uint64
	res   *ExecResult
}

func (h *wasmHostCtx) consume(op Opcode) int32 {
	cost := GasCost(op)
	if h.used+cost > h.gas {
		h.res.Status = false
		h.res.RevertReason = "out of gas"
		return -1
	}
	h.used += cost
	return 0
}

func runWasm(ctx *VMContext) *ExecResult {
	res := &ExecResult{Status: true}
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)

	mod, err := wasmer.NewModule(store, ctx.Code)
	if err != nil {
		res.Status = false
		res.RevertReason = "invalid module: " + err.Error()
		return res
	}

	var target Address
	if ctx.Tx.To != nil {
		target = *ctx.Tx.To
	}
	h := &wasmHostCtx{state: ctx.State, addr: target, gas: ctx.GasLimit, res: res}
	imports := registerWasmHost(store, h)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		res.Status = false
		res.RevertReason = "instantiate: " + err.Error()
		return res
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		res.Status = false
		res.RevertReason = "wasm memory export missing"
		return res
	}
	h.mem = mem

	run, err := instance.Exports.GetFunction("main")
	if err != nil {
		res.Status = false
		res.RevertReason = "wasm main export missing"
		return res
	}
	if _, err := run(); err != nil {
		res.Status = false
		res.RevertReason = err.Error()
	}
	res.GasUsed = h.used
	return res
}

func registerWasmHost(store *wasmer.Store, h *wasmHostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	read := func(ptr, ln int32) []byte {
		data := h.mem.Data()
		if int(ptr) < 0 || int(ptr)+int(ln) > len(data) {
			return nil
		}
		out := make([]byte, ln)
		copy(out, data[ptr:ptr+ln])
		return out
	}
	write := func(ptr int32, data []byte) {
		mem := h.mem.Data()
		if int(ptr) >= 0 && int(ptr)+len(data) <= len(mem) {
			copy(mem[ptr:], data)
		}
	}

	consumeGas := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32),
			wasmer.NewValueTypes(wasmer.I32),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			op := Opcode(uint32(args[0].I32()))
			return []wasmer.Value{wasmer.NewI32(h.consume(op))}, nil
		},
	)

	sload := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(wasmer.I32),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			slotPtr := args[0].I32()
			outPtr := args[1].I32()
			var slot Hash
			copy(slot[:], read(slotPtr, 32))
			val := h.state.GetStorage(h.addr, slot)
			write(outPtr, val[:])
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	sstore := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.I32, wasmer.I32),
			wasmer.NewValueTypes(wasmer.I32),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			slotPtr := args[0].I32()
			valPtr := args[1].I32()
			var slot, val Hash
			copy(slot[:], read(slotPtr, 32))
			copy(val[:], read(valPtr, 32))
			if err := h.state.SetStorage(h.addr, slot, val); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_gas": consumeGas,
		"host_sload":       sload,
		"host_sstore":      sstore,
	})
	return imports
}
