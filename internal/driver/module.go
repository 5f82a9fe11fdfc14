package driver

import (
	"github.com/vs-ude/fyrbuild/internal/incremental"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// ModuleKind ...
type ModuleKind int

const (
	// ModuleRegular is a codegen unit of the program or its global asm companion.
	ModuleRegular ModuleKind = iota
	// ModuleAllocator is the allocator shim.
	ModuleAllocator
	// ModuleMetadata holds the compressed crate metadata.
	ModuleMetadata
)

// String ...
func (k ModuleKind) String() string {
	switch k {
	case ModuleRegular:
		return "regular"
	case ModuleAllocator:
		return "allocator"
	case ModuleMetadata:
		return "metadata"
	}
	return "unknown"
}

// CompiledModule lists the temporary files produced for one module.
// Empty paths mean the file was not produced.
type CompiledModule struct {
	Name     string
	Kind     ModuleKind
	Object   string
	Bytecode string
	Assembly string
	IR       string
}

// Path returns the temporary file of the given output type.
func (m *CompiledModule) Path(t session.OutputType) string {
	switch t {
	case session.OutputObject:
		return m.Object
	case session.OutputBitcode:
		return m.Bytecode
	case session.OutputAssembly:
		return m.Assembly
	case session.OutputIR:
		return m.IR
	}
	return ""
}

func (m *CompiledModule) files() []string {
	var files []string
	for _, f := range []string{m.Object, m.Bytecode, m.Assembly, m.IR} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

// CrateInfo is what the linker needs to know about the crate.
type CrateInfo struct {
	CrateName         string
	TargetCPU         string
	CrateTypes        []mono.CrateType
	DependencyFormats map[mono.CrateType]mono.DependencyList
}

// CodegenResults is the outcome of a successful codegen session.
type CodegenResults struct {
	// Modules are in partition order. The global asm companion of a unit directly follows it.
	Modules         []*CompiledModule
	AllocatorModule *CompiledModule
	MetadataModule  *CompiledModule
	Metadata        []byte
	CrateInfo       CrateInfo
	// WorkProducts maps every unit to its current work product.
	// It is empty when incremental compilation is off.
	WorkProducts map[string]*incremental.WorkProduct
}
