package c99

import (
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/mono"
)

type object struct {
	backend *Backend
	opts    backend.ObjectOptions
	mod     *Module
	defined map[string]mono.Item
	externs map[string]bool
	asm     []*mono.GlobalAsm
}

func newObject(b *Backend, unitName string, opts backend.ObjectOptions) *object {
	return &object{
		backend: b,
		opts:    opts,
		mod:     NewModule(unitName),
		defined: make(map[string]mono.Item),
		externs: make(map[string]bool),
	}
}

// Predefine ...
func (o *object) Predefine(item mono.Item) error {
	sym := item.SymbolName()
	if sym == "" {
		return nil
	}
	if !isIdentifier(sym) {
		return errors.Errorf("symbol %q is not a valid C identifier", sym)
	}
	if sym == "main" {
		return errors.New("the symbol `main` is reserved for the entry point")
	}
	if _, ok := o.defined[sym]; ok {
		return errors.Errorf("symbol %v is defined twice", sym)
	}
	o.defined[sym] = item
	return nil
}

// EmitFunction ...
func (o *object) EmitFunction(f *mono.Function) error {
	if o.defined[f.Symbol] != mono.Item(f) {
		return errors.Errorf("function %v has not been predefined", f.Symbol)
	}
	fn := &Function{Name: f.Symbol, ReturnType: mapType(f.Result), IsExported: !f.Local}
	for i, p := range f.Params {
		fn.Parameters = append(fn.Parameters, &FunctionParameter{Name: paramName(i), Type: mapType(p.Type)})
	}
	// Every register is declared up front, a body may assign them in any order.
	var registers []int
	seen := make(map[int]bool)
	for _, instr := range f.Body {
		if instr.Op != mono.OpReturn && instr.Dest >= 0 && !seen[instr.Dest] {
			seen[instr.Dest] = true
			registers = append(registers, instr.Dest)
		}
	}
	sort.Ints(registers)
	for _, r := range registers {
		fn.Body = append(fn.Body, &Var{Name: register(r).Name, Type: registerType, InitExpr: &Constant{Code: "0"}})
	}
	for i := range f.Body {
		stmt, err := o.lowerInstr(f, &f.Body[i])
		if err != nil {
			return errors.Wrapf(err, "function %v", f.Symbol)
		}
		fn.Body = append(fn.Body, stmt)
	}
	o.mod.Elements = append(o.mod.Elements, fn)
	return nil
}

func (o *object) lowerInstr(f *mono.Function, instr *mono.Instr) (Node, error) {
	assign := func(expr Node) Node {
		return &Binary{Operator: "=", Left: register(instr.Dest), Right: expr}
	}
	switch instr.Op {
	case mono.OpConst:
		return assign(constant(instr.Value)), nil
	case mono.OpParam:
		return assign(toRegister(&Identifier{Name: paramName(int(instr.Value))}, f.Params[instr.Value].Type)), nil
	case mono.OpAdd, mono.OpSub, mono.OpMul:
		// Arithmetic wraps around, which is undefined for signed integers in C.
		op := map[mono.Op]string{mono.OpAdd: "+", mono.OpSub: "-", mono.OpMul: "*"}[instr.Op]
		u64 := NewTypeDecl("uint64_t")
		expr := &Binary{Operator: op,
			Left:  &TypeCast{Type: u64, Expr: register(instr.Args[0])},
			Right: &TypeCast{Type: u64, Expr: register(instr.Args[1])}}
		return assign(&TypeCast{Type: registerType, Expr: expr}), nil
	case mono.OpCall:
		call := &FunctionCall{FuncExpr: &Identifier{Name: instr.Symbol}}
		result := mono.TypeI64
		callee, known := o.defined[instr.Symbol].(*mono.Function)
		if known {
			if len(callee.Params) != len(instr.Args) {
				return nil, errors.Errorf("call of %v with %d arguments, expected %d", instr.Symbol, len(instr.Args), len(callee.Params))
			}
			result = callee.Result
		} else if _, ok := o.defined[instr.Symbol]; ok {
			return nil, errors.Errorf("%v is not a function", instr.Symbol)
		} else {
			o.addExtern(&Function{Name: instr.Symbol, ReturnType: registerType, IsExtern: true})
		}
		for i, a := range instr.Args {
			if known {
				call.Args = append(call.Args, convert(register(a), callee.Params[i].Type))
			} else {
				call.Args = append(call.Args, register(a))
			}
		}
		if instr.Dest < 0 {
			return call, nil
		}
		if result == mono.TypeVoid {
			return nil, errors.Errorf("the result of %v is void", instr.Symbol)
		}
		return assign(toRegister(call, result)), nil
	case mono.OpAddr:
		if _, ok := o.defined[instr.Symbol]; !ok {
			o.addExtern(&GlobalVar{Name: instr.Symbol, IsExtern: true})
		}
		return assign(toRegister(&Unary{Operator: "&", Expr: &Identifier{Name: instr.Symbol}}, mono.TypePtr)), nil
	case mono.OpReturn:
		if len(instr.Args) == 0 {
			return &Return{}, nil
		}
		return &Return{Expr: convert(register(instr.Args[0]), f.Result)}, nil
	}
	return nil, errors.Errorf("unsupported instruction %v", instr.Op)
}

func (o *object) addExtern(n Node) {
	name := ""
	switch n := n.(type) {
	case *Function:
		name = n.Name
	case *GlobalVar:
		name = n.Name
	}
	if o.externs[name] {
		return
	}
	o.externs[name] = true
	o.mod.Externs = append(o.mod.Externs, n)
}

// EmitStatic ...
func (o *object) EmitStatic(s *mono.Static) error {
	if o.defined[s.Symbol] != mono.Item(s) {
		return errors.Errorf("static %v has not been predefined", s.Symbol)
	}
	o.mod.Elements = append(o.mod.Elements, &GlobalVar{
		Name:       s.Symbol,
		Data:       s.Data,
		Align:      s.Align,
		IsConst:    !s.Mutable,
		IsExported: !s.Local,
	})
	return nil
}

// EmitGlobalAsm ...
func (o *object) EmitGlobalAsm(a *mono.GlobalAsm) error {
	o.asm = append(o.asm, a)
	return nil
}

// EmitEntryWrapper ...
func (o *object) EmitEntryWrapper(main string) error {
	if o.mod.Main != nil {
		return errors.New("the entry point has already been defined")
	}
	w := &Function{
		Name:       "main",
		ReturnType: NewTypeDecl("int"),
		Parameters: []*FunctionParameter{
			{Name: "argc", Type: NewTypeDecl("int")},
			{Name: "argv", Type: NewTypeDecl("char**")},
		},
		IsExported: true,
	}
	call := &FunctionCall{FuncExpr: &Identifier{Name: main}}
	f, ok := o.defined[main].(*mono.Function)
	if !ok {
		if _, defined := o.defined[main]; defined {
			return errors.Errorf("the entry point %v is not a function", main)
		}
		f = &mono.Function{Symbol: main, Result: mono.TypeVoid}
		o.addExtern(&Function{Name: main, ReturnType: mapType(mono.TypeVoid), IsExtern: true})
	}
	if len(f.Params) != 0 {
		return errors.Errorf("the entry point %v must not have parameters", main)
	}
	if f.Result == mono.TypeVoid {
		w.Body = []Node{call, &Return{Expr: &Constant{Code: "0"}}}
	} else {
		w.Body = []Node{&Return{Expr: &TypeCast{Type: NewTypeDecl("int"), Expr: call}}}
	}
	o.mod.Main = w
	return nil
}

func register(r int) *Identifier {
	return &Identifier{Name: "r" + strconv.Itoa(r)}
}

func paramName(i int) string {
	return "p" + strconv.Itoa(i)
}

func constant(v int64) Node {
	if v == math.MinInt64 {
		return &Constant{Code: "INT64_MIN"}
	}
	return &Constant{Code: "INT64_C(" + strconv.FormatInt(v, 10) + ")"}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
