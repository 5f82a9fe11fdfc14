package mono

import (
	"fmt"
	"strings"
)

// CompilationUnit is an independently compilable slice of a program.
// It is immutable once the program has been partitioned.
type CompilationUnit struct {
	Name  string
	Items []Item
	// Primary marks the unit that owns the entry-point wrapper.
	Primary bool
}

// ItemsInDeterministicOrder returns the items in emission order.
// The order is the partition order, which is stable across runs.
func (u *CompilationUnit) ItemsInDeterministicOrder() []Item {
	return append([]Item(nil), u.Items...)
}

// HasGlobalAsm ...
func (u *CompilationUnit) HasGlobalAsm() bool {
	for _, item := range u.Items {
		if item.Kind() == ItemGlobalAsm {
			return true
		}
	}
	return false
}

// Defines reports whether the unit defines the given symbol.
func (u *CompilationUnit) Defines(symbol string) bool {
	for _, item := range u.Items {
		if item.SymbolName() == symbol {
			return true
		}
	}
	return false
}

// CrateType ...
type CrateType string

const (
	// CrateExecutable ...
	CrateExecutable CrateType = "executable"
	// CrateLib ...
	CrateLib CrateType = "lib"
	// CrateRlib ...
	CrateRlib CrateType = "rlib"
	// CrateDylib ...
	CrateDylib CrateType = "dylib"
	// CrateStaticlib ...
	CrateStaticlib CrateType = "staticlib"
	// CrateProcMacro ...
	CrateProcMacro CrateType = "proc-macro"
)

// AllocatorKind ...
type AllocatorKind string

const (
	// AllocatorNone means the program needs no allocator shim.
	AllocatorNone AllocatorKind = ""
	// AllocatorDefault forwards the shim to the runtime's default allocator.
	AllocatorDefault AllocatorKind = "default"
	// AllocatorGlobal forwards the shim to a user supplied global allocator.
	AllocatorGlobal AllocatorKind = "global"
)

// Linkage describes how a dependency is linked into a crate type.
type Linkage string

const (
	// LinkageNotLinked ...
	LinkageNotLinked Linkage = "not-linked"
	// LinkageIncludedFromDylib ...
	LinkageIncludedFromDylib Linkage = "included-from-dylib"
	// LinkageStatic ...
	LinkageStatic Linkage = "static"
	// LinkageDynamic ...
	LinkageDynamic Linkage = "dynamic"
)

// DependencyList maps a dependency crate to its linkage.
type DependencyList map[string]Linkage

// Program is the partitioned, monomorphized program handed over by the front-end.
type Program struct {
	CrateName  string
	CrateTypes []CrateType
	Units      []*CompilationUnit
	// MainSymbol is the user entry point called by the wrapper in the primary unit.
	MainSymbol string
	Allocator  AllocatorKind
	// Metadata is the serialized crate metadata.
	Metadata     []byte
	Dependencies map[CrateType]DependencyList
}

// HasCrateType ...
func (p *Program) HasCrateType(ct CrateType) bool {
	for _, t := range p.CrateTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// NeedsMetadataModule reports whether downstream consumers need an embeddable copy of the metadata.
func (p *Program) NeedsMetadataModule() bool {
	return p.HasCrateType(CrateDylib) || p.HasCrateType(CrateProcMacro)
}

// Validate checks the partition invariants: unique unit names, at most one primary unit,
// every symbol defined once and every function body well formed.
func (p *Program) Validate() error {
	if p.CrateName == "" {
		return fmt.Errorf("program has no crate name")
	}
	units := make(map[string]bool)
	symbols := make(map[string]string)
	primary := ""
	for _, u := range p.Units {
		if u.Name == "" || strings.ContainsAny(u.Name, "/\\") {
			return fmt.Errorf("invalid codegen unit name %q", u.Name)
		}
		if units[u.Name] {
			return fmt.Errorf("duplicate codegen unit %v", u.Name)
		}
		units[u.Name] = true
		if u.Primary {
			if primary != "" {
				return fmt.Errorf("codegen units %v and %v are both primary", primary, u.Name)
			}
			primary = u.Name
		}
		for _, item := range u.Items {
			sym := item.SymbolName()
			if sym == "" {
				continue
			}
			if other, ok := symbols[sym]; ok {
				return fmt.Errorf("symbol %v is defined in %v and %v", sym, other, u.Name)
			}
			symbols[sym] = u.Name
			if f, ok := item.(*Function); ok {
				if err := f.Validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
