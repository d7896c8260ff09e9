// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"errors"

	"github.com/bytecodealliance/wasmtime-go/v14"
)

const (
	EnvModuleName    = "env"
	RollupModuleName = "smart_rollup"

	MemoryName = "memory"
)

// Imports is the guest-visible import surface, a set of named host modules
// registered into a wasmtime linker.
type Imports struct {
	Modules map[string]*ImportModule
}

func NewImports() *Imports {
	return &Imports{Modules: map[string]*ImportModule{}}
}

func (i *Imports) AddModule(mod *ImportModule) {
	i.Modules[mod.Name] = mod
}

// SetFuelCost overrides the fuel charged for one host call.
func (i *Imports) SetFuelCost(moduleName string, functionName string, fuelCost uint64) bool {
	module, ok := i.Modules[moduleName]
	if !ok {
		return false
	}
	fn, ok := module.HostFunctions[functionName]
	if !ok {
		return false
	}
	fn.FuelCost = fuelCost
	module.HostFunctions[functionName] = fn
	return true
}

// CreateLinker registers every host function. [resolve] recovers the
// CallContext of the machine driving the store; one store maps to exactly
// one in-flight call.
func (i *Imports) CreateLinker(
	engine *wasmtime.Engine,
	resolve func(wasmtime.Storelike) *CallContext,
) (*wasmtime.Linker, error) {
	linker := wasmtime.NewLinker(engine)
	for moduleName, module := range i.Modules {
		for funcName, fn := range module.HostFunctions {
			if err := linker.FuncNew(moduleName, funcName, fn.Type, fn.bind(resolve)); err != nil {
				return nil, err
			}
		}
	}
	return linker, nil
}

// ImportModule is one named group of host functions.
type ImportModule struct {
	Name          string
	HostFunctions map[string]HostFunction
}

// HostFunction couples a wasmtime signature with its implementation and
// per-call fuel cost.
type HostFunction struct {
	Type     *wasmtime.FuncType
	FuelCost uint64
	Call     func(ctx context.Context, call *CallContext, args []wasmtime.Val) ([]wasmtime.Val, error)
}

func (f HostFunction) bind(
	resolve func(wasmtime.Storelike) *CallContext,
) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		call := resolve(caller)
		if call.Memory == nil {
			call.Memory = &wasmMemory{caller: caller}
		}
		if err := call.Meter.Consume(f.FuelCost); err != nil {
			return nil, convertToTrap(err)
		}
		ctx := call.Context
		if ctx == nil {
			ctx = context.Background()
		}
		results, err := f.Call(ctx, call, args)
		if err != nil {
			return nil, convertToTrap(err)
		}
		return results, nil
	}
}

func convertToTrap(err error) *wasmtime.Trap {
	if err == nil {
		return nil
	}
	var t *wasmtime.Trap
	if errors.As(err, &t) {
		return t
	}
	return wasmtime.NewTrap(err.Error())
}

var (
	typeI32 = wasmtime.NewValType(wasmtime.KindI32)
	typeI64 = wasmtime.NewValType(wasmtime.KindI64)
)

// NewEnvModule exposes env.abort and env.exit.
func NewEnvModule() *ImportModule {
	return &ImportModule{
		Name: EnvModuleName,
		HostFunctions: map[string]HostFunction{
			"abort": {
				Type:     wasmtime.NewFuncType([]*wasmtime.ValType{}, []*wasmtime.ValType{}),
				FuelCost: 1,
				Call: func(_ context.Context, call *CallContext, _ []wasmtime.Val) ([]wasmtime.Val, error) {
					return nil, Abort(call)
				},
			},
			"exit": {
				Type:     wasmtime.NewFuncType([]*wasmtime.ValType{typeI32}, []*wasmtime.ValType{}),
				FuelCost: 1,
				Call: func(_ context.Context, call *CallContext, args []wasmtime.Val) ([]wasmtime.Val, error) {
					return nil, Exit(call, args[0].I32())
				},
			},
		},
	}
}

// NewRollupModule exposes smart_rollup.read_input and
// smart_rollup.write_output.
func NewRollupModule() *ImportModule {
	return &ImportModule{
		Name: RollupModuleName,
		HostFunctions: map[string]HostFunction{
			"read_input": {
				Type: wasmtime.NewFuncType(
					[]*wasmtime.ValType{typeI32, typeI32, typeI32, typeI32, typeI32},
					[]*wasmtime.ValType{typeI64},
				),
				FuelCost: 1,
				Call: func(ctx context.Context, call *CallContext, args []wasmtime.Val) ([]wasmtime.Val, error) {
					written, err := ReadInput(
						ctx,
						call,
						uint64(uint32(args[0].I32())),
						uint64(uint32(args[1].I32())),
						uint64(uint32(args[2].I32())),
						uint64(uint32(args[3].I32())),
						uint64(uint32(args[4].I32())),
					)
					if err != nil {
						return nil, err
					}
					return []wasmtime.Val{wasmtime.ValI64(int64(written))}, nil
				},
			},
			"write_output": {
				Type: wasmtime.NewFuncType(
					[]*wasmtime.ValType{typeI32, typeI32},
					[]*wasmtime.ValType{},
				),
				FuelCost: 1,
				Call: func(ctx context.Context, call *CallContext, args []wasmtime.Val) ([]wasmtime.Val, error) {
					err := WriteOutput(
						ctx,
						call,
						uint64(uint32(args[0].I32())),
						uint64(uint32(args[1].I32())),
					)
					return nil, err
				},
			},
		},
	}
}

// DefaultImports is the full import surface a rollup kernel links against.
func DefaultImports() *Imports {
	imports := NewImports()
	imports.AddModule(NewEnvModule())
	imports.AddModule(NewRollupModule())
	return imports
}
