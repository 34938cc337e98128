// Package wasmsandbox loads and executes untrusted WASM guest modules under
// fuel metering and epoch-deadline wall-clock cancellation, dispatching
// capability-gated host calls.
//
// Guests export memory/alloc/execute and import host_call/host_log under
// the module name "openfang". wasmtime-go is used because wasmtime is the
// engine that exposes both deterministic fuel metering and epoch
// interruption natively.
package wasmsandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

// HostDispatcher resolves a host_call method to a capability-gated handler.
// Implementations live alongside the caller that knows how to actually
// perform fs/network/messaging operations (the agent runtime, external to
// this package).
type HostDispatcher interface {
	// Dispatch executes method with the given JSON params, after the
	// capability check has already passed. Returning an error produces
	// {"error": err.Error()} in the guest-visible response.
	Dispatch(ctx context.Context, agentID, method string, params json.RawMessage) (json.RawMessage, error)
	// RequiredCapability returns the capability kind+scope a given method
	// needs, so the sandbox can check it before calling Dispatch.
	RequiredCapability(method string, params json.RawMessage) (kind CapabilityKind, scope string)
}

// Instance is a one-shot WASM sandbox: create, Execute, discard.
type Instance struct {
	GuestModule    []byte
	FuelBudget     uint64
	EpochDeadline  time.Duration
	Capabilities   Set
	AgentID        string
	Dispatcher     HostDispatcher
}

// Outcome classifies how Execute ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFuelExhausted
	OutcomeTimeout
	OutcomeExecutionError
)

// Result is the outcome of one Execute call.
type Result struct {
	Outcome Outcome
	Output  []byte
	Err     error
}

// Execute instantiates GuestModule fresh, calls its execute(input) export,
// and tears the instance down before returning. It must be called on a
// goroutine backed by a blocking OS thread tier (see ExecuteBlocking),
// never from the main async scheduler pool, since WASM execution is
// CPU-bound.
func Execute(ctx context.Context, inst *Instance, input []byte) Result {
	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(true)
	cfg.SetEpochInterruption(true)

	engine := wasmtime.NewEngineWithConfig(cfg)
	store := wasmtime.NewStore(engine)

	fuel := inst.FuelBudget
	if fuel > 0 {
		if err := store.SetFuel(fuel); err != nil {
			return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: set fuel: %w", err)}
		}
	}

	deadline := inst.EpochDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	store.SetEpochDeadline(1)
	stopEpochTicker := make(chan struct{})
	go func() {
		select {
		case <-time.After(deadline):
			engine.IncrementEpoch()
		case <-stopEpochTicker:
		}
	}()
	defer close(stopEpochTicker)

	module, err := wasmtime.NewModule(engine, inst.GuestModule)
	if err != nil {
		return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: compile module: %w", err)}
	}

	linker := wasmtime.NewLinker(engine)
	if err := defineHostImports(linker, store, inst); err != nil {
		return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: define imports: %w", err)}
	}

	instance, err := linker.Instantiate(store, module)
	if err != nil {
		return Result{Outcome: classifyTrapErr(err), Err: fmt.Errorf("wasm: instantiate: %w", err)}
	}

	mem := instance.GetExport(store, "memory")
	allocFn := instance.GetExport(store, "alloc")
	executeFn := instance.GetExport(store, "execute")
	if mem == nil || mem.Memory() == nil || allocFn == nil || allocFn.Func() == nil || executeFn == nil || executeFn.Func() == nil {
		return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: guest missing required export (memory/alloc/execute)")}
	}

	inputPtr, err := writeGuestMemory(store, mem.Memory(), allocFn.Func(), input)
	if err != nil {
		return Result{Outcome: OutcomeExecutionError, Err: err}
	}

	raw, err := executeFn.Func().Call(store, inputPtr, int32(len(input)))
	if err != nil {
		return Result{Outcome: classifyTrapErr(err), Err: fmt.Errorf("wasm: execute trapped: %w", err)}
	}

	packed, ok := raw.(int64)
	if !ok {
		return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: execute returned unexpected type %T", raw)}
	}
	outPtr := int32(packed >> 32)
	outLen := int32(packed & 0xFFFFFFFF)

	data := mem.Memory().UnsafeData(store)
	if int(outPtr) < 0 || int(outPtr)+int(outLen) > len(data) {
		return Result{Outcome: OutcomeExecutionError, Err: fmt.Errorf("wasm: execute result out of bounds")}
	}
	output := make([]byte, outLen)
	copy(output, data[outPtr:outPtr+outLen])

	return Result{Outcome: OutcomeOK, Output: output}
}

func classifyTrapErr(err error) Outcome {
	trap, ok := err.(*wasmtime.Trap)
	if !ok {
		return OutcomeExecutionError
	}
	code := trap.Code()
	if code == nil {
		return OutcomeExecutionError
	}
	switch *code {
	case wasmtime.OutOfFuel:
		return OutcomeFuelExhausted
	case wasmtime.Interrupt:
		return OutcomeTimeout
	default:
		return OutcomeExecutionError
	}
}

// writeGuestMemory calls the guest's alloc(size) and copies data into the
// returned pointer.
func writeGuestMemory(store wasmtime.Storelike, mem *wasmtime.Memory, allocFn *wasmtime.Func, data []byte) (int32, error) {
	raw, err := allocFn.Call(store, int32(len(data)))
	if err != nil {
		return 0, fmt.Errorf("wasm: guest alloc: %w", err)
	}
	ptr, ok := raw.(int32)
	if !ok {
		return 0, fmt.Errorf("wasm: alloc returned unexpected type %T", raw)
	}
	buf := mem.UnsafeData(store)
	if int(ptr)+len(data) > len(buf) {
		return 0, fmt.Errorf("wasm: alloc returned out-of-bounds pointer")
	}
	copy(buf[ptr:], data)
	return ptr, nil
}

func defineHostImports(linker *wasmtime.Linker, store *wasmtime.Store, inst *Instance) error {
	if err := linker.FuncNew("openfang", "host_call", hostCallType(), func(caller *wasmtime.Caller, vals []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		reqPtr := vals[0].I32()
		reqLen := vals[1].I32()

		mem := caller.GetExport("memory")
		if mem == nil || mem.Memory() == nil {
			return nil, wasmtime.NewTrap("host_call: guest has no memory export")
		}
		data := mem.Memory().UnsafeData(caller)
		if int(reqPtr)+int(reqLen) > len(data) || reqPtr < 0 || reqLen < 0 {
			return nil, wasmtime.NewTrap("host_call: request out of bounds")
		}
		reqBytes := append([]byte(nil), data[reqPtr:reqPtr+reqLen]...)

		respBytes := dispatchHostCall(context.Background(), inst, reqBytes)

		allocExp := caller.GetExport("alloc")
		if allocExp == nil || allocExp.Func() == nil {
			return nil, wasmtime.NewTrap("host_call: guest has no alloc export")
		}
		outPtr, err := writeGuestMemory(caller, mem.Memory(), allocExp.Func(), respBytes)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		packed := (int64(outPtr) << 32) | int64(uint32(len(respBytes)))
		return []wasmtime.Val{wasmtime.ValI64(packed)}, nil
	}); err != nil {
		return err
	}

	return linker.FuncNew("openfang", "host_log", hostLogType(), func(caller *wasmtime.Caller, vals []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		level := vals[0].I32()
		msgPtr := vals[1].I32()
		msgLen := vals[2].I32()

		mem := caller.GetExport("memory")
		if mem == nil || mem.Memory() == nil {
			return nil, nil
		}
		data := mem.Memory().UnsafeData(caller)
		if int(msgPtr)+int(msgLen) > len(data) || msgPtr < 0 || msgLen < 0 {
			return nil, nil
		}
		msg := string(data[msgPtr : msgPtr+msgLen])
		logGuestMessage(inst.AgentID, level, msg)
		return nil, nil
	})
}

func logGuestMessage(agentID string, level int32, msg string) {
	// host_log is unchecked logging: no capability gate.
	switch {
	case level >= 3:
		slog.Error("wasm guest log", "agent_id", agentID, "msg", msg)
	case level == 2:
		slog.Warn("wasm guest log", "agent_id", agentID, "msg", msg)
	default:
		slog.Info("wasm guest log", "agent_id", agentID, "msg", msg)
	}
}

type hostCallRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// dispatchHostCall checks the guest's granted capabilities before invoking
// the dispatcher. On a capability mismatch it returns
// {"error": "<method> denied"} without ever calling Dispatch, so a denied
// call has no side effect.
func dispatchHostCall(ctx context.Context, inst *Instance, reqBytes []byte) []byte {
	var req hostCallRequest
	if err := json.Unmarshal(reqBytes, &req); err != nil {
		return mustMarshal(map[string]string{"error": "malformed host_call request"})
	}

	kind, scope := inst.Dispatcher.RequiredCapability(req.Method, req.Params)
	if !inst.Capabilities.Allows(kind, scope) {
		return mustMarshal(map[string]string{"error": req.Method + " denied"})
	}

	result, err := inst.Dispatcher.Dispatch(ctx, inst.AgentID, req.Method, req.Params)
	if err != nil {
		return mustMarshal(map[string]string{"error": err.Error()})
	}
	return mustMarshal(map[string]json.RawMessage{"ok": result})
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal: failed to marshal host_call response"}`)
	}
	return b
}

func hostCallType() *wasmtime.FuncType {
	return wasmtime.NewFuncType(
		[]*wasmtime.ValType{wasmtime.NewValType(wasmtime.KindI32), wasmtime.NewValType(wasmtime.KindI32)},
		[]*wasmtime.ValType{wasmtime.NewValType(wasmtime.KindI64)},
	)
}

func hostLogType() *wasmtime.FuncType {
	return wasmtime.NewFuncType(
		[]*wasmtime.ValType{
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32),
		},
		[]*wasmtime.ValType{},
	)
}
