package mono

import (
	"fmt"
	"strconv"
)

// Type is the machine-level type of a parameter or result.
type Type int

const (
	// TypeVoid ...
	TypeVoid Type = iota
	// TypeI32 ...
	TypeI32
	// TypeI64 ...
	TypeI64
	// TypePtr ...
	TypePtr
)

// String ...
func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypePtr:
		return "ptr"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Op is the operation of an instruction.
type Op int

const (
	// OpConst loads Value into Dest.
	OpConst Op = iota
	// OpParam loads parameter number Value into Dest.
	OpParam
	// OpAdd ...
	OpAdd
	// OpSub ...
	OpSub
	// OpMul ...
	OpMul
	// OpCall calls Symbol with Args. A negative Dest discards the result.
	OpCall
	// OpAddr loads the address of Symbol into Dest.
	OpAddr
	// OpReturn returns Args[0], or nothing if Args is empty.
	OpReturn
)

var opNames = []string{"const", "param", "add", "sub", "mul", "call", "addr", "return"}

// String ...
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// ParseOp ...
func ParseOp(name string) (Op, error) {
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown instruction %q", name)
}

// Instr is one instruction of a lowered function body.
// Operands are virtual registers.
type Instr struct {
	Op     Op
	Dest   int
	Args   []int
	Value  int64
	Symbol string
}

// ToString ...
func (i *Instr) ToString() string {
	switch i.Op {
	case OpConst, OpParam:
		return fmt.Sprintf("r%d = %v %d", i.Dest, i.Op, i.Value)
	case OpAdd, OpSub, OpMul:
		return fmt.Sprintf("r%d = %v r%d, r%d", i.Dest, i.Op, i.Args[0], i.Args[1])
	case OpCall:
		str := fmt.Sprintf("call %v(", i.Symbol)
		for j, a := range i.Args {
			if j > 0 {
				str += ", "
			}
			str += "r" + strconv.Itoa(a)
		}
		str += ")"
		if i.Dest >= 0 {
			str = fmt.Sprintf("r%d = ", i.Dest) + str
		}
		return str
	case OpAddr:
		return fmt.Sprintf("r%d = addr %v", i.Dest, i.Symbol)
	case OpReturn:
		if len(i.Args) == 0 {
			return "return"
		}
		return fmt.Sprintf("return r%d", i.Args[0])
	}
	return i.Op.String()
}

// ItemKind ...
type ItemKind int

const (
	// ItemFunction ...
	ItemFunction ItemKind = iota
	// ItemStatic ...
	ItemStatic
	// ItemGlobalAsm ...
	ItemGlobalAsm
)

// Item is a monomorphized item of a codegen unit.
type Item interface {
	Kind() ItemKind
	// SymbolName is empty for global assembly blocks.
	SymbolName() string
}

// Param ...
type Param struct {
	Name string
	Type Type
}

// Function ...
type Function struct {
	Symbol string
	Params []Param
	Result Type
	Body   []Instr
	// Local functions are not visible outside of their unit.
	Local bool
}

// Kind ...
func (f *Function) Kind() ItemKind { return ItemFunction }

// SymbolName ...
func (f *Function) SymbolName() string { return f.Symbol }

// Validate checks that the body only uses defined registers and parameters.
func (f *Function) Validate() error {
	defined := make(map[int]bool)
	use := func(r int) error {
		if !defined[r] {
			return fmt.Errorf("function %v uses undefined register r%d", f.Symbol, r)
		}
		return nil
	}
	for n := range f.Body {
		instr := &f.Body[n]
		switch instr.Op {
		case OpParam:
			if instr.Value < 0 || int(instr.Value) >= len(f.Params) {
				return fmt.Errorf("function %v has no parameter %d", f.Symbol, instr.Value)
			}
		case OpAdd, OpSub, OpMul:
			if len(instr.Args) != 2 {
				return fmt.Errorf("function %v: %v expects two operands", f.Symbol, instr.Op)
			}
		case OpCall, OpAddr:
			if instr.Symbol == "" {
				return fmt.Errorf("function %v: %v without symbol", f.Symbol, instr.Op)
			}
		case OpReturn:
			if len(instr.Args) > 1 {
				return fmt.Errorf("function %v returns more than one value", f.Symbol)
			}
			if (len(instr.Args) == 0) != (f.Result == TypeVoid) {
				return fmt.Errorf("function %v: return does not match result type %v", f.Symbol, f.Result)
			}
		}
		for _, a := range instr.Args {
			if err := use(a); err != nil {
				return err
			}
		}
		if instr.Op != OpReturn && (instr.Op != OpCall || instr.Dest >= 0) {
			defined[instr.Dest] = true
		}
	}
	return nil
}

// Static ...
type Static struct {
	Symbol  string
	Data    []byte
	Align   int
	Mutable bool
	Local   bool
}

// Kind ...
func (s *Static) Kind() ItemKind { return ItemStatic }

// SymbolName ...
func (s *Static) SymbolName() string { return s.Symbol }

// GlobalAsm is a block of raw target assembly.
// `{N}` in the template refers to Symbols[N].
type GlobalAsm struct {
	Template string
	Symbols  []string
}

// Kind ...
func (a *GlobalAsm) Kind() ItemKind { return ItemGlobalAsm }

// SymbolName ...
func (a *GlobalAsm) SymbolName() string { return "" }
