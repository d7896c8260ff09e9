// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/host"
)

const (
	// EntrypointName is the export the kernel must expose; it is invoked
	// once per pending input.
	EntrypointName = "kernel_run"

	defaultFuelPerStep = 10_000_000
)

// WasmStepper evaluates a compiled WASM kernel with wasmtime under fuel
// metering. It is the coarse adapter: one Step runs the kernel's exported
// entrypoint to completion for the current input, with host calls bridged
// through [host]. NaN canonicalization and fuel metering keep evaluation
// deterministic. Safe for concurrent Steps; each Step runs on its own
// store.
type WasmStepper struct {
	log     logging.Logger
	engine  *wasmtime.Engine
	module  *wasmtime.Module
	linker  *wasmtime.Linker
	imports *host.Imports

	fuelPerStep uint64
	meter       fuel.Meter

	// one stepper serves every machine of a driver, including parallel
	// replays; callInfo is written by each in-flight Step
	callInfoLock sync.Mutex
	callInfo     map[uintptr]*host.CallContext
}

// WasmOption configures a WasmStepper.
type WasmOption func(*WasmStepper)

// WithImports replaces the default import surface.
func WithImports(imports *host.Imports) WasmOption {
	return func(s *WasmStepper) {
		s.imports = imports
	}
}

// WithGuestMeter charges guest execution (including per-host-call costs)
// against [meter] instead of an unmetered account.
func WithGuestMeter(meter fuel.Meter) WasmOption {
	return func(s *WasmStepper) {
		s.meter = meter
	}
}

// WithFuelPerStep bounds the wasmtime fuel granted to a single Step.
func WithFuelPerStep(units uint64) WasmOption {
	return func(s *WasmStepper) {
		s.fuelPerStep = units
	}
}

func NewWasmStepper(log logging.Logger, kernel []byte, opts ...WasmOption) (*WasmStepper, error) {
	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(true)
	cfg.SetStrategy(wasmtime.StrategyCranelift)
	cfg.SetCraneliftFlag("enable_nan_canonicalization", "true")
	cfg.SetWasmThreads(false)
	cfg.SetWasmSIMD(false)

	s := &WasmStepper{
		log:         log,
		engine:      wasmtime.NewEngineWithConfig(cfg),
		imports:     host.DefaultImports(),
		fuelPerStep: defaultFuelPerStep,
		meter:       fuel.NewFree(),
		callInfo:    map[uintptr]*host.CallContext{},
	}
	for _, opt := range opts {
		opt(s)
	}

	module, err := wasmtime.NewModule(s.engine, kernel)
	if err != nil {
		return nil, fmt.Errorf("compiling kernel: %w", err)
	}
	s.module = module

	linker, err := s.imports.CreateLinker(s.engine, s.resolveCall)
	if err != nil {
		return nil, fmt.Errorf("linking host imports: %w", err)
	}
	s.linker = linker
	return s, nil
}

func (s *WasmStepper) Step(ctx context.Context, inst *Instance) (Outcome, error) {
	store := wasmtime.NewStore(s.engine)
	if err := store.AddFuel(s.fuelPerStep); err != nil {
		return Outcome{}, err
	}

	call := &host.CallContext{
		Context: ctx,
		Log:     s.log,
		Inbox:   inst.Inbox,
		Outbox:  inst.Outbox,
		Meter:   s.meter,
	}
	key := toMapKey(store)
	s.registerCall(key, call)
	defer s.dropCall(key)

	guest, err := s.linker.Instantiate(store, s.module)
	if err != nil {
		return Outcome{}, fmt.Errorf("instantiating kernel: %w", err)
	}
	entrypoint := guest.GetFunc(store, EntrypointName)
	if entrypoint == nil {
		return Outcome{}, fmt.Errorf("kernel does not export %q", EntrypointName)
	}

	_, callErr := entrypoint.Call(store)

	if consumed, ok := store.FuelConsumed(); ok {
		if err := s.meter.Consume(consumed); err != nil {
			return Outcome{}, err
		}
	}
	if callErr != nil {
		return Outcome{}, classifyTrap(callErr)
	}
	return Outcome{Kind: Completed}, nil
}

func (s *WasmStepper) registerCall(key uintptr, call *host.CallContext) {
	s.callInfoLock.Lock()
	defer s.callInfoLock.Unlock()
	s.callInfo[key] = call
}

func (s *WasmStepper) dropCall(key uintptr) {
	s.callInfoLock.Lock()
	defer s.callInfoLock.Unlock()
	delete(s.callInfo, key)
}

// resolveCall recovers the call context of the machine driving [storeLike];
// each store belongs to exactly one in-flight Step.
func (s *WasmStepper) resolveCall(storeLike wasmtime.Storelike) *host.CallContext {
	s.callInfoLock.Lock()
	defer s.callInfoLock.Unlock()
	return s.callInfo[toMapKey(storeLike)]
}

func toMapKey(storeLike wasmtime.Storelike) uintptr {
	return reflect.ValueOf(storeLike.Context()).Pointer()
}

func classifyTrap(err error) error {
	trap, ok := err.(*wasmtime.Trap)
	if !ok {
		return err
	}
	if code := trap.Code(); code != nil && *code == wasmtime.OutOfFuel {
		return fmt.Errorf("%w: %s", fuel.ErrExhausted, trap.Message())
	}
	return trap
}
