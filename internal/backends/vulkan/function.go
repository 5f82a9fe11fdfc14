package vulkan

import (
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/mono"

	. "github.com/vs-ude/spirv"
)

// Function is a SPIR-V function under construction.
type Function struct {
	name     string
	ResultId Id
	blocks   []InstructionList
}

// predefineFunction reserves the id of a function so that it can be referenced before it is built.
func (mod *ModuleBuilder) predefineFunction(f *mono.Function) (*Function, error) {
	if len(f.Params) != 0 || f.Result != mono.TypeVoid {
		return nil, errors.Errorf("function %v: the spirv backend only supports functions without parameters and results", f.Symbol)
	}
	fun := &Function{name: f.Symbol, ResultId: mod.NewResultId()}
	mod.AddName(fun.ResultId, f.Symbol)
	return fun, nil
}

func (mod *ModuleBuilder) buildFunction(fun *Function, f *mono.Function) error {
	block := InstructionList{&OpLabel{ResultId: mod.NewResultId()}}
	for _, instr := range f.Body {
		if instr.Op != mono.OpReturn {
			return errors.Errorf("function %v: instruction %v is not supported by the spirv backend", f.Symbol, instr.Op)
		}
	}
	block = append(block, &OpReturn{})
	fun.blocks = append(fun.blocks, block)
	mod.Functions = append(mod.Functions, fun.Assemble(mod))
	return nil
}

// Assemble returns the instructions of the function including its signature.
func (f *Function) Assemble(mod *ModuleBuilder) InstructionList {
	void := mod.EnsureType(&OpTypeVoid{})
	fnType := mod.EnsureType(&OpTypeFunction{ResultId: 0, ReturnType: void, Argv: []Id{}})
	list := InstructionList{&OpFunction{ResultType: void, ResultId: f.ResultId, FunctionControl: 0, FunctionType: fnType}}
	for _, b := range f.blocks {
		list = append(list, b...)
	}
	return append(list, &OpFunctionEnd{})
}
