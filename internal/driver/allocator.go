package driver

import (
	"github.com/vs-ude/fyrbuild/internal/mono"
)

// AllocatorModuleName is the name of the module holding the allocator shim.
const AllocatorModuleName = "allocator_shim"

type allocatorMethod struct {
	name   string
	params []mono.Type
	result mono.Type
}

var allocatorMethods = []allocatorMethod{
	{"alloc", []mono.Type{mono.TypeI64, mono.TypeI64}, mono.TypePtr},
	{"dealloc", []mono.Type{mono.TypePtr, mono.TypeI64, mono.TypeI64}, mono.TypeVoid},
	{"realloc", []mono.Type{mono.TypePtr, mono.TypeI64, mono.TypeI64, mono.TypeI64}, mono.TypePtr},
	{"alloc_zeroed", []mono.Type{mono.TypeI64, mono.TypeI64}, mono.TypePtr},
}

var allocatorParamNames = map[string][]string{
	"alloc":        {"size", "align"},
	"dealloc":      {"ptr", "size", "align"},
	"realloc":      {"ptr", "old_size", "align", "new_size"},
	"alloc_zeroed": {"size", "align"},
}

// allocatorPrefix returns the symbol prefix of the allocator the shim forwards to.
func allocatorPrefix(kind mono.AllocatorKind) string {
	if kind == mono.AllocatorGlobal {
		return "__fg_"
	}
	return "__fdefault_"
}

// allocatorShim returns the items of the allocator shim.
// Each `__fyr_<method>` forwards its arguments to the allocator selected by `kind`.
func allocatorShim(kind mono.AllocatorKind) []mono.Item {
	prefix := allocatorPrefix(kind)
	items := make([]mono.Item, 0, len(allocatorMethods))
	for _, m := range allocatorMethods {
		f := &mono.Function{Symbol: "__fyr_" + m.name, Result: m.result}
		args := make([]int, len(m.params))
		for i, t := range m.params {
			f.Params = append(f.Params, mono.Param{Name: allocatorParamNames[m.name][i], Type: t})
			f.Body = append(f.Body, mono.Instr{Op: mono.OpParam, Dest: i, Value: int64(i)})
			args[i] = i
		}
		call := mono.Instr{Op: mono.OpCall, Dest: -1, Args: args, Symbol: prefix + m.name}
		ret := mono.Instr{Op: mono.OpReturn}
		if m.result != mono.TypeVoid {
			call.Dest = len(m.params)
			ret.Args = []int{call.Dest}
		}
		f.Body = append(f.Body, call, ret)
		items = append(items, f)
	}
	return items
}
