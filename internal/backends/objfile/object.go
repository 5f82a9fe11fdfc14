package objfile

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/mono"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// Backend writes objects in the fyr object format without any external tool.
type Backend struct{}

// NewBackend ...
func NewBackend() *Backend {
	return &Backend{}
}

// Name ...
func (*Backend) Name() string {
	return "obj"
}

// SupportedOutputs ...
func (*Backend) SupportedOutputs() []session.OutputType {
	return []session.OutputType{session.OutputAssembly, session.OutputIR, session.OutputBitcode}
}

// NewObject ...
func (*Backend) NewObject(unitName string, opts backend.ObjectOptions) (backend.Object, error) {
	return &object{unit: unitName, opts: opts, defined: make(map[string]mono.Item), undefined: make(map[string]bool)}, nil
}

type object struct {
	unit      string
	opts      backend.ObjectOptions
	defined   map[string]mono.Item
	undefined map[string]bool
	functions []*mono.Function
	statics   []*mono.Static
	asm       []*mono.GlobalAsm
	entry     string
	producer  string
}

func (o *object) Predefine(item mono.Item) error {
	sym := item.SymbolName()
	if sym == "" {
		return nil
	}
	if _, ok := o.defined[sym]; ok {
		return errors.Errorf("symbol %v is defined twice", sym)
	}
	o.defined[sym] = item
	return nil
}

func (o *object) EmitFunction(f *mono.Function) error {
	if o.defined[f.Symbol] != mono.Item(f) {
		return errors.Errorf("function %v has not been predefined", f.Symbol)
	}
	for _, instr := range f.Body {
		if instr.Op == mono.OpCall || instr.Op == mono.OpAddr {
			o.reference(instr.Symbol)
		}
	}
	o.functions = append(o.functions, f)
	return nil
}

func (o *object) EmitStatic(s *mono.Static) error {
	if o.defined[s.Symbol] != mono.Item(s) {
		return errors.Errorf("static %v has not been predefined", s.Symbol)
	}
	if s.Align < 0 || s.Align&(s.Align-1) != 0 {
		return errors.Errorf("static %v has an invalid alignment %d", s.Symbol, s.Align)
	}
	o.statics = append(o.statics, s)
	return nil
}

func (o *object) EmitGlobalAsm(a *mono.GlobalAsm) error {
	o.asm = append(o.asm, a)
	return nil
}

func (o *object) EmitEntryWrapper(main string) error {
	if o.entry != "" {
		return errors.New("the entry point has already been defined")
	}
	if item, ok := o.defined[main]; ok && item.Kind() != mono.ItemFunction {
		return errors.Errorf("the entry point %v is not a function", main)
	}
	o.reference(main)
	o.entry = main
	return nil
}

func (o *object) reference(sym string) {
	if _, ok := o.defined[sym]; !ok {
		o.undefined[sym] = true
	}
}

func (o *object) FinishObject(path string, info backend.FinishInfo) error {
	o.producer = info.Producer
	f := &File{}
	var symbols []Symbol
	var unwind []Symbol
	var text []byte
	for _, fn := range o.functions {
		code := encodeFunction(fn)
		sym := Symbol{Name: fn.Symbol, Binding: binding(fn.Local), Size: uint32(len(code))}
		if o.opts.FunctionSections {
			sym.Section = ".text." + fn.Symbol
			f.Sections = append(f.Sections, Section{Name: sym.Section, Data: code})
		} else {
			sym.Section = ".text"
			sym.Offset = uint32(len(text))
			text = append(text, code...)
		}
		symbols = append(symbols, sym)
		unwind = append(unwind, sym)
	}
	if !o.opts.FunctionSections {
		f.Sections = append(f.Sections, Section{Name: ".text", Data: text})
	}
	var data, rodata []byte
	for _, s := range o.statics {
		sym := Symbol{Name: s.Symbol, Binding: binding(s.Local), Size: uint32(len(s.Data))}
		if s.Mutable {
			sym.Section = ".data"
			data = appendAligned(data, s.Data, s.Align, &sym.Offset)
		} else {
			sym.Section = ".rodata"
			rodata = appendAligned(rodata, s.Data, s.Align, &sym.Offset)
		}
		symbols = append(symbols, sym)
	}
	f.Sections = append(f.Sections, Section{Name: ".data", Data: data}, Section{Name: ".rodata", Data: rodata})
	for _, name := range sortedKeys(o.undefined) {
		symbols = append(symbols, Symbol{Name: name, Binding: BindUndefined})
	}
	f.Sections = append(f.Sections, Section{Name: ".symtab", Data: EncodeSymbols(symbols)})
	f.Sections = append(f.Sections, Section{Name: ".comment", Data: []byte(info.Producer)})
	if info.DebugInfo {
		f.Sections = append(f.Sections, Section{Name: ".debug_info", Data: []byte(o.debugInfo())})
	}
	if info.UnwindTables {
		f.Sections = append(f.Sections, Section{Name: ".eh_frame", Data: EncodeSymbols(unwind)})
	}
	if o.entry != "" {
		f.Sections = append(f.Sections, Section{Name: ".entry", Data: []byte(o.entry)})
	}
	if o.opts.TargetCPU != "" {
		f.Sections = append(f.Sections, Section{Name: ".note.target-cpu", Data: []byte(o.opts.TargetCPU)})
	}
	if err := ioutil.WriteFile(path, f.Encode(), 0o644); err != nil {
		return err
	}
	for t, p := range info.Emit {
		var out []byte
		switch t {
		case session.OutputIR:
			out = []byte(o.irListing())
		case session.OutputAssembly:
			out = []byte(o.asmListing())
		case session.OutputBitcode:
			out = o.bitcode()
		default:
			return errors.Errorf("the obj backend cannot emit %v", t)
		}
		if err := ioutil.WriteFile(p, out, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (o *object) FinishGlobalAsm(path string) (bool, error) {
	if len(o.asm) == 0 {
		return false, nil
	}
	var text []string
	for _, a := range o.asm {
		s, err := a.Render()
		if err != nil {
			return false, err
		}
		text = append(text, s)
	}
	f := &File{Sections: []Section{
		{Name: ".asm", Data: []byte(strings.Join(text, "\n"))},
		{Name: ".comment", Data: []byte(o.producer)},
	}}
	return true, ioutil.WriteFile(path, f.Encode(), 0o644)
}

func (o *object) debugInfo() string {
	str := "unit " + o.unit + "\n"
	for _, fn := range o.functions {
		str += fmt.Sprintf("%v: %d instructions\n", fn.Symbol, len(fn.Body))
	}
	return str
}

func (o *object) irListing() string {
	str := "; codegen unit " + o.unit + "\n"
	for _, fn := range o.functions {
		var params []string
		for _, p := range fn.Params {
			params = append(params, p.Type.String()+" %"+p.Name)
		}
		linkage := ""
		if fn.Local {
			linkage = "internal "
		}
		str += fmt.Sprintf("define %v%v @%v(%v) {\n", linkage, fn.Result, fn.Symbol, strings.Join(params, ", "))
		for i := range fn.Body {
			str += "  " + fn.Body[i].ToString() + "\n"
		}
		str += "}\n"
	}
	for _, s := range o.statics {
		kind := "constant"
		if s.Mutable {
			kind = "global"
		}
		str += fmt.Sprintf("@%v = %v [%d x i8] c%v, align %d\n", s.Symbol, kind, len(s.Data), strconv.Quote(string(s.Data)), s.Align)
	}
	if o.entry != "" {
		str += "; entry " + o.entry + "\n"
	}
	return str
}

func (o *object) asmListing() string {
	str := "\t.file\t" + strconv.Quote(o.unit) + "\n\t.text\n"
	for _, fn := range o.functions {
		if !fn.Local {
			str += "\t.globl\t" + fn.Symbol + "\n"
		}
		str += fn.Symbol + ":\n"
		for i := range fn.Body {
			str += "\t" + fn.Body[i].ToString() + "\n"
		}
	}
	for _, s := range o.statics {
		if s.Mutable {
			str += "\t.data\n"
		} else {
			str += "\t.section\t.rodata\n"
		}
		if s.Align > 1 {
			str += "\t.p2align\t" + strconv.Itoa(log2(s.Align)) + "\n"
		}
		str += s.Symbol + ":\n"
		for _, b := range s.Data {
			str += "\t.byte\t" + strconv.Itoa(int(b)) + "\n"
		}
	}
	return str
}

// bitcode is the portable encoding of the lowered functions.
func (o *object) bitcode() []byte {
	out := []byte("FYBC")
	for _, fn := range o.functions {
		out = binary.AppendUvarint(out, uint64(len(fn.Symbol)))
		out = append(out, fn.Symbol...)
		code := encodeFunction(fn)
		out = binary.AppendUvarint(out, uint64(len(code)))
		out = append(out, code...)
	}
	return out
}

func encodeFunction(fn *mono.Function) []byte {
	var out []byte
	out = binary.AppendUvarint(out, uint64(fn.Result))
	out = binary.AppendUvarint(out, uint64(len(fn.Params)))
	for _, p := range fn.Params {
		out = binary.AppendUvarint(out, uint64(p.Type))
	}
	for _, instr := range fn.Body {
		out = binary.AppendUvarint(out, uint64(instr.Op))
		out = binary.AppendVarint(out, int64(instr.Dest))
		out = binary.AppendVarint(out, instr.Value)
		out = binary.AppendUvarint(out, uint64(len(instr.Symbol)))
		out = append(out, instr.Symbol...)
		out = binary.AppendUvarint(out, uint64(len(instr.Args)))
		for _, a := range instr.Args {
			out = binary.AppendVarint(out, int64(a))
		}
	}
	return out
}

func appendAligned(section, data []byte, align int, offset *uint32) []byte {
	if align > 1 {
		for len(section)%align != 0 {
			section = append(section, 0)
		}
	}
	*offset = uint32(len(section))
	return append(section, data...)
}

func binding(local bool) SymbolBinding {
	if local {
		return BindLocal
	}
	return BindGlobal
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
