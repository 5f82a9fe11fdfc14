package backend

import (
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// Backend is the interface backends have to follow in order to be usable in the compiler.
// The driver creates one Object per codegen unit. Objects of different units are
// used from different goroutines, so a Backend must not share mutable state between them.
type Backend interface {
	Name() string
	// SupportedOutputs lists the per-unit outputs the backend can write besides the object file.
	SupportedOutputs() []session.OutputType
	NewObject(unitName string, opts ObjectOptions) (Object, error)
}

// ObjectOptions are the codegen options that apply to every item of an object.
type ObjectOptions struct {
	TargetCPU        string
	FunctionSections bool
	DebugInfo        bool
}

// Object receives the items of one codegen unit.
// Predefine is called for every item before any item is emitted.
type Object interface {
	Predefine(item mono.Item) error
	EmitFunction(f *mono.Function) error
	EmitStatic(s *mono.Static) error
	// EmitGlobalAsm queues a global asm block. The blocks are assembled by FinishGlobalAsm.
	EmitGlobalAsm(a *mono.GlobalAsm) error
	// EmitEntryWrapper defines the process entry point calling `main`.
	EmitEntryWrapper(main string) error
	// FinishObject writes the object file to `path` and the outputs requested in `info.Emit`.
	FinishObject(path string, info FinishInfo) error
	// FinishGlobalAsm writes the object assembled from the queued global asm to `path`.
	// It reports false if the unit has no global asm.
	FinishGlobalAsm(path string) (bool, error)
}

// FinishInfo ...
type FinishInfo struct {
	// Producer identifies the compiler in the object file.
	Producer     string
	DebugInfo    bool
	UnwindTables bool
	// Emit maps additional output types to the file they are written to.
	// It only contains types listed by SupportedOutputs.
	Emit map[session.OutputType]string
}

// Supports reports whether the backend can write the given output type for a unit.
// Every backend writes objects.
func Supports(b Backend, t session.OutputType) bool {
	if t == session.OutputObject {
		return true
	}
	for _, s := range b.SupportedOutputs() {
		if s == t {
			return true
		}
	}
	return false
}

// Salter is implemented by backends whose resolved configuration changes the emitted objects.
type Salter interface {
	Salt() string
}

// Salt returns the configuration digest of a backend, or "" if it has none.
func Salt(b Backend) string {
	if s, ok := b.(Salter); ok {
		return s.Salt()
	}
	return ""
}
