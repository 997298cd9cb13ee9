// VM Executor: runs a single transaction's bytecode against a StateRW view
// and produces a Receipt plus an execution trace. Three tiers exist:
// Execute (vm_executor.go) hands transfers and calls to code-less addresses
// to SuperLightVM, and SelectVM picks LightVM or HeavyVM from the target
// bytecode's leading bytes alone (the execution mode plays no part) —
// mirroring the teacher's SuperLightVM/LightVM/HeavyVM
// split, generalized here to stand in for the opaque zk-VM this node
// otherwise treats as a black box.
package core

import (
	"encoding/binary"
	"fmt"
)

// ExecMode distinguishes the three call shapes the Sequencer drives the
// executor with. Only ModeNormal's state changes are ever committed.
type ExecMode int

const (
	ModeNormal ExecMode = iota
	ModeEthCall
	ModeEstimateGas
)

// ExecResult is everything the Sequencer needs to build a Receipt and
// decide whether to commit or discard the transaction's state layer.
type ExecResult struct {
	Status       bool // false => reverted
	Halted       bool // true => validation failure, never entered the VM
	GasUsed      uint64
	ReturnData   []byte
	RevertReason string
	Logs         []Log
	Trace        *CallFrame
	CreatedAddr  *Address
}

// VM is implemented by each execution tier.
type VM interface {
	Execute(ctx *VMContext) *ExecResult
}

// VMContext carries everything one call needs: the code to run, the
// account performing the call, available gas, and a handle onto state.
type VMContext struct {
	Tx       *Transaction
	Code     []byte
	State    StateRW
	Mode     ExecMode
	GasLimit uint64
	Cheats   *CheatcodeRegistry
	prank    *prankOverride
}

// SelectVM picks an execution tier for the given call. WASM-tagged
// bytecode (a 0x00 'a' 's' 'm' magic prefix, the real WebAssembly header)
// is routed to HeavyVM; everything else runs on
// LightVM, which is cheap enough to also serve ModeEthCall/ModeEstimateGas
// probes.
func SelectVM(code []byte) VM {
	if len(code) >= 4 && code[0] == 0x00 && code[1] == 'a' && code[2] == 's' && code[3] == 'm' {
		return &HeavyVM{}
	}
	return &LightVM{}
}

// --- LightVM: a small stack interpreter over the Opcode ISA ---

type LightVM struct{}

type execStack struct {
	data [][32]byte
}

func (s *execStack) push(v [32]byte) { s.data = append(s.data, v) }

func (s *execStack) pop() ([32]byte, error) {
	if len(s.data) == 0 {
		return [32]byte{}, fmt.Errorf("stack underflow")
	}
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v, nil
}

func wordFromUint64(v uint64) [32]byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w
}

func uint64FromWord(w [32]byte) uint64 {
	return binary.BigEndian.Uint64(w[24:])
}

// Execute interprets ctx.Code as a flat sequence of (opcode, operand)
// pairs. PUSH is followed by 8 operand bytes (a uint64 immediate, zero
// extended into a 32-byte word); every other opcode takes no immediate.
func (vm *LightVM) Execute(ctx *VMContext) *ExecResult {
	res := &ExecResult{Status: true}
	gasRemaining := ctx.GasLimit
	stack := &execStack{}
	var logs []Log
	trace := &CallFrame{Kind: "CALL", From: ctx.Tx.From, Input: ctx.Tx.Data}
	if ctx.Tx.To != nil {
		trace.To = *ctx.Tx.To
	}

	charge := func(op Opcode) bool {
		cost := GasCost(op)
		if gasRemaining < cost {
			res.Status = false
			res.RevertReason = "out of gas"
			return false
		}
		gasRemaining -= cost
		res.GasUsed += cost
		return true
	}

	code := ctx.Code
	pc := 0
	for pc < len(code) {
		op := Opcode(code[pc])
		pc++
		if !charge(op) {
			break
		}
		switch op {
		case STOP, RETURN, RET:
			pc = len(code)
		case PUSH:
			if pc+8 > len(code) {
				res.Status = false
				res.RevertReason = "truncated PUSH operand"
				pc = len(code)
				break
			}
			var w [32]byte
			copy(w[24:], code[pc:pc+8])
			stack.push(w)
			pc += 8
		case POP:
			if _, err := stack.pop(); err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
			}
		case ADD, SUB, MUL, DIV, MOD, LT, GT, EQ, AND, OR:
			b, errB := stack.pop()
			a, errA := stack.pop()
			if errA != nil || errB != nil {
				res.Status, res.RevertReason = false, "stack underflow"
				pc = len(code)
				break
			}
			stack.push(applyBinOp(op, a, b))
		case NOT:
			a, err := stack.pop()
			if err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
				break
			}
			var out [32]byte
			for i := range a {
				out[i] = ^a[i]
			}
			stack.push(out)
		case DUP:
			a, err := stack.pop()
			if err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
				break
			}
			stack.push(a)
			stack.push(a)
		case SWAP:
			b, errB := stack.pop()
			a, errA := stack.pop()
			if errA != nil || errB != nil {
				res.Status, res.RevertReason = false, "stack underflow"
				pc = len(code)
				break
			}
			stack.push(b)
			stack.push(a)
		case JUMP:
			target, err := stack.pop()
			if err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
				break
			}
			pc = int(uint64FromWord(target))
		case JUMPI:
			target, errT := stack.pop()
			cond, errC := stack.pop()
			if errT != nil || errC != nil {
				res.Status, res.RevertReason = false, "stack underflow"
				pc = len(code)
				break
			}
			if uint64FromWord(cond) != 0 {
				pc = int(uint64FromWord(target))
			}
		case STORE, SSTORE:
			val, errV := stack.pop()
			slotW, errS := stack.pop()
			if errV != nil || errS != nil {
				res.Status, res.RevertReason = false, "stack underflow"
				pc = len(code)
				break
			}
			if err := ctx.State.SetStorage(trace.To, Hash(slotW), Hash(val)); err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
			}
		case LOAD, SLOAD:
			slotW, err := stack.pop()
			if err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
				break
			}
			v := ctx.State.GetStorage(trace.To, Hash(slotW))
			stack.push([32]byte(v))
		case BALANCE:
			bal := ctx.State.GetBalance(trace.To)
			stack.push(bal.Bytes32())
		case CALLER:
			var w [32]byte
			copy(w[12:], ctx.Tx.From[:])
			if ctx.prank != nil {
				copy(w[12:], ctx.prank.sender[:])
			}
			stack.push(w)
		case CALLVALUE:
			if ctx.Tx.Value != nil {
				stack.push(ctx.Tx.Value.Bytes32())
			} else {
				stack.push([32]byte{})
			}
		case LOG:
			data, err := stack.pop()
			if err != nil {
				res.Status, res.RevertReason = false, err.Error()
				pc = len(code)
				break
			}
			logs = append(logs, Log{Address: trace.To, Data: data[:], TxHash: ctx.Tx.TxHash()})
		case REVERT:
			res.Status = false
			res.RevertReason = "explicit revert"
			pc = len(code)
		case CALL:
			addrW, errAddr := stack.pop()
			valueW, errVal := stack.pop()
			if errAddr != nil || errVal != nil {
				res.Status, res.RevertReason = false, "stack underflow"
				pc = len(code)
				break
			}
			var callee Address
			copy(callee[:], addrW[12:])
			amt := new(Amount).SetUint64(uint64FromWord(valueW))
			frame := &CallFrame{Kind: "CALL", From: trace.To, To: callee, Value: amt}
			if !amt.IsZero() {
				if err := ctx.State.SubBalance(trace.To, amt); err != nil {
					frame.Error = err.Error()
					trace.Calls = append(trace.Calls, frame)
					stack.push(wordFromUint64(0))
					break
				}
				ctx.State.AddBalance(callee, amt)
			}
			calleeCode := ctx.State.GetCode(callee)
			if len(calleeCode) == 0 {
				trace.Calls = append(trace.Calls, frame)
				stack.push(wordFromUint64(1))
				break
			}
			nestedTx := &Transaction{Type: TxCall, From: trace.To, To: &callee, Value: amt}
			nested := SelectVM(calleeCode).Execute(&VMContext{
				Tx: nestedTx, Code: calleeCode, State: ctx.State, Mode: ctx.Mode,
				GasLimit: gasRemaining, Cheats: ctx.Cheats,
			})
			if nested.GasUsed > gasRemaining {
				nested.GasUsed = gasRemaining
			}
			gasRemaining -= nested.GasUsed
			res.GasUsed += nested.GasUsed
			frame.GasUsed = nested.GasUsed
			frame.Output = nested.ReturnData
			if nested.Trace != nil {
				frame.Calls = nested.Trace.Calls
			}
			logs = append(logs, nested.Logs...)
			if nested.Status {
				stack.push(wordFromUint64(1))
			} else {
				frame.Error = nested.RevertReason
				stack.push(wordFromUint64(0))
			}
			trace.Calls = append(trace.Calls, frame)
		default:
			res.Status = false
			res.RevertReason = fmt.Sprintf("invalid opcode %s", op)
			pc = len(code)
		}
	}

	res.Logs = logs
	res.Trace = trace
	trace.GasUsed = res.GasUsed
	if !res.Status {
		trace.Error = res.RevertReason
	}
	return res
}

func applyBinOp(op Opcode, a, b [32]byte) [32]byte {
	x := uint64FromWord(a)
	y := uint64FromWord(b)
	var r uint64
	switch op {
	case ADD:
		r = x + y
	case SUB:
		r = x - y
	case MUL:
		r = x * y
	case DIV:
		if y != 0 {
			r = x / y
		}
	case MOD:
		if y != 0 {
			r = x % y
		}
	case LT:
		if x < y {
			r = 1
		}
	case GT:
		if x > y {
			r = 1
		}
	case EQ:
		if x == y {
			r = 1
		}
	case AND:
		r = x & y
	case OR:
		r = x | y
	}
	return wordFromUint64(r)
}

// --- HeavyVM: wasmer-backed execution for WASM-dialect bytecode ---

// HeavyVM executes wasm modules through wasmer-go, the same engine the
// teacher uses for its heavy tier. Module instantiation and host-function
// wiring live in vm_wasm.go; this file only defines the interface seam so
// vm.go stays readable.
type HeavyVM struct{}

func (vm *HeavyVM) Execute(ctx *VMContext) *ExecResult {
	return runWasm(ctx)
}

// SuperLightVM is a zero-cost stand-in used for plain value transfers that
// carry no calldata: no interpreter loop runs at all.
type SuperLightVM struct{}

func (vm *SuperLightVM) Execute(ctx *VMContext) *ExecResult {
	return &ExecResult{Status: true, GasUsed: IntrinsicGas(ctx.Tx)}
}
