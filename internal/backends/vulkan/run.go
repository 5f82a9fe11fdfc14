package vulkan

import (
	"encoding/hex"
	"os"

	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"

	"github.com/vs-ude/spirv"
)

// Backend This backend compiles codegen units to SPIR-V modules for vulkan.
type Backend struct{}

// NewBackend Constructs the backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Name ...
func (*Backend) Name() string {
	return "spirv"
}

// SupportedOutputs ...
func (*Backend) SupportedOutputs() []session.OutputType {
	return nil
}

// NewObject ...
func (*Backend) NewObject(unitName string, opts backend.ObjectOptions) (backend.Object, error) {
	mod := newModuleBuilder(unitName)
	mod.AddCapability(spirv.CapabilityShader)
	mod.AddressingModel = spirv.AddressingModelLogical
	mod.MemoryModel = spirv.MemoryModelGLSL450
	mod.ExecutionModel = spirv.ExecutionModelGLCompute
	mod.ExecutionMode = spirv.ExecutionModeLocalSize
	mod.ExecutionModeArgv = []uint32{1, 1, 1}
	return &object{mod: mod, functions: make(map[string]*Function), symbols: make(map[string]bool)}, nil
}

type object struct {
	mod       *ModuleBuilder
	functions map[string]*Function
	symbols   map[string]bool
	hasAsm    bool
}

func (o *object) Predefine(item mono.Item) error {
	sym := item.SymbolName()
	if sym == "" {
		return nil
	}
	if o.symbols[sym] {
		return errors.Errorf("symbol %v is defined twice", sym)
	}
	o.symbols[sym] = true
	if f, ok := item.(*mono.Function); ok {
		fun, err := o.mod.predefineFunction(f)
		if err != nil {
			return err
		}
		o.functions[sym] = fun
	}
	return nil
}

func (o *object) EmitFunction(f *mono.Function) error {
	fun, ok := o.functions[f.Symbol]
	if !ok {
		return errors.Errorf("function %v has not been predefined", f.Symbol)
	}
	return o.mod.buildFunction(fun, f)
}

// EmitStatic records the data of a static as a named debug string, SPIR-V has no untyped global memory.
func (o *object) EmitStatic(s *mono.Static) error {
	id := o.mod.AddString(hex.EncodeToString(s.Data))
	o.mod.AddName(id, s.Symbol)
	return nil
}

func (o *object) EmitGlobalAsm(a *mono.GlobalAsm) error {
	o.hasAsm = true
	return errors.New("the spirv backend does not support global asm")
}

func (o *object) EmitEntryWrapper(main string) error {
	fun, ok := o.functions[main]
	if !ok {
		return errors.Errorf("the entry point %v must be a function of the same codegen unit", main)
	}
	o.mod.EntryPoint = fun.ResultId
	return nil
}

func (o *object) FinishObject(path string, info backend.FinishInfo) error {
	if info.Producer != "" {
		o.mod.AddString(info.Producer)
	}
	if o.mod.EntryPoint == 0 {
		o.mod.AddCapability(spirv.CapabilityLinkage)
	}
	smod := o.mod.BuildSpirvModule()
	// Module.Verify predates OpCapability in the logical layout, only the header can be checked.
	if err := smod.Header.Verify(); err != nil {
		return err
	}
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := smod.Save(fd); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}

func (o *object) FinishGlobalAsm(path string) (bool, error) {
	if o.hasAsm {
		return false, errors.New("the spirv backend does not support global asm")
	}
	return false, nil
}
