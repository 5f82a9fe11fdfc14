package vulkan

import (
	. "github.com/vs-ude/spirv"
)

// ModuleBuilder collects the sections of a SPIR-V module in their logical order.
type ModuleBuilder struct {
	Name string
	// File header
	Header Header
	// Top
	Capabilities      []Capability
	Extensions        []string
	ExtInstImports    InstructionList
	AddressingModel   AddressingModel
	MemoryModel       MemoryModel
	ExecutionModel    ExecutionModel
	EntryPoint        Id // We only expect one entry point
	ExecutionMode     ExecutionMode
	ExecutionModeArgv []uint32
	// Debug, all OpString precede all OpName
	Strings InstructionList
	Names   InstructionList
	// Head
	Types     InstructionList
	Constants InstructionList
	Globals   InstructionList
	// Body
	Functions []InstructionList
}

// newModuleBuilder creates a new, default module.
func newModuleBuilder(name string) *ModuleBuilder {
	return &ModuleBuilder{
		Name: name,
		Header: Header{
			Magic:          MagicLE,
			Version:        SpecificationVersion,
			GeneratorMagic: 0,
			Bound:          1,
			Reserved:       0,
		},
	}
}

// NewResultId retrieves a new unused ResultId for the module and adjusts the bound.
func (m *ModuleBuilder) NewResultId() (id Id) {
	id = m.Header.Bound
	m.Header.Bound++
	return
}

// AddCapability ...
func (m *ModuleBuilder) AddCapability(cap Capability) {
	for _, c := range m.Capabilities {
		if c == cap {
			return
		}
	}
	m.Capabilities = append(m.Capabilities, cap)
}

// AddExtension ...
func (m *ModuleBuilder) AddExtension(ext string) {
	m.Extensions = append(m.Extensions, ext)
}

// AddExtInstImport ...
func (m *ModuleBuilder) AddExtInstImport(instr Instruction) {
	m.ExtInstImports = append(m.ExtInstImports, instr)
}

// AddName attaches a debug name to an id.
func (m *ModuleBuilder) AddName(id Id, name string) {
	m.Names = append(m.Names, &OpName{Target: id, Name: String(name)})
}

// AddString adds a debug string and returns its id.
func (m *ModuleBuilder) AddString(s string) Id {
	id := m.NewResultId()
	m.Strings = append(m.Strings, &OpString{ResultId: id, String: String(s)})
	return id
}

func (m *ModuleBuilder) addType(instr Instruction) {
	m.Types = append(m.Types, instr)
}

// EnsureType looks through the already registered types and either returns its ResultId or adds a new instruction.
func (m *ModuleBuilder) EnsureType(refInstr Instruction) (id Id) {
	for _, instr := range m.Types.Filter(refInstr.Opcode()) {
		if InstructionEquals(instr, refInstr, false) {
			id, ok := InstructionResultId(instr)
			if !ok {
				panic("type should have ResultId")
			}
			return id
		}
	}
	id = m.NewResultId()
	SetInstructionResultId(refInstr, id)
	m.addType(refInstr)
	return
}

func addInstr(smod *Module, instr Instruction) {
	smod.Code = append(smod.Code, instr)
}

func addInstrs(smod *Module, instrs InstructionList) {
	smod.Code = append(smod.Code, instrs...)
}

// BuildSpirvModule assembles the collected sections.
func (m *ModuleBuilder) BuildSpirvModule() *Module {
	smod := Module{Header: m.Header}

	for _, cap := range m.Capabilities {
		addInstr(&smod, &OpCapability{Capability: cap})
	}
	for _, s := range m.Extensions {
		addInstr(&smod, &OpExtension{Name: String(s)})
	}
	addInstrs(&smod, m.ExtInstImports)
	addInstr(&smod, &OpMemoryModel{AddressingModel: m.AddressingModel, MemoryModel: m.MemoryModel})
	if m.EntryPoint != 0 {
		addInstr(&smod, &OpEntryPoint{ExecutionModel: m.ExecutionModel, EntryPoint: m.EntryPoint, Name: "Main", Interface: []Id{}})
		addInstr(&smod, &OpExecutionMode{EntryPoint: m.EntryPoint, Mode: m.ExecutionMode, Argv: m.ExecutionModeArgv})
	}

	addInstrs(&smod, m.Strings)
	addInstrs(&smod, m.Names)
	addInstrs(&smod, m.Types)
	addInstrs(&smod, m.Constants)
	addInstrs(&smod, m.Globals)

	for _, fun := range m.Functions {
		addInstrs(&smod, fun)
	}

	return &smod
}
