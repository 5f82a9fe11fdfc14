package c99

import (
	"strconv"
)

// Node ...
type Node interface {
	ToString(indent string) string
	Precedence() int
}

// NodeBase ...
type NodeBase struct {
}

// Module is the C translation unit generated for one codegen unit.
type Module struct {
	Name     string
	Producer string
	Includes []*Include
	Elements []Node // Function | GlobalVar
	// Externs are declarations of symbols defined in other units.
	Externs []Node
	Main    *Function
}

// Include ...
type Include struct {
	Path         string
	IsSystemPath bool
}

// Function ...
type Function struct {
	NodeBase
	Name       string
	ReturnType *TypeDecl
	Parameters []*FunctionParameter
	Body       []Node
	IsExported bool
	IsExtern   bool
}

// FunctionParameter ...
type FunctionParameter struct {
	Name string
	Type *TypeDecl
}

// TypeDecl ...
type TypeDecl struct {
	NodeBase
	Code string
}

// Return ...
type Return struct {
	NodeBase
	Expr Node
}

// Unary ...
type Unary struct {
	NodeBase
	Expr     Node
	Operator string
}

// Binary ...
type Binary struct {
	NodeBase
	Left     Node
	Right    Node
	Operator string
}

// FunctionCall ...
type FunctionCall struct {
	NodeBase
	FuncExpr Node
	Args     []Node
}

// TypeCast ...
type TypeCast struct {
	NodeBase
	Type *TypeDecl
	Expr Node
}

// Var ...
type Var struct {
	NodeBase
	Name     string
	Type     *TypeDecl
	InitExpr Node
}

// GlobalVar is a byte array holding the data of a static.
type GlobalVar struct {
	NodeBase
	Name       string
	Data       []byte
	Align      int
	IsConst    bool
	IsExported bool
	IsExtern   bool
}

// Identifier ...
type Identifier struct {
	NodeBase
	Name string
}

// Constant ...
type Constant struct {
	NodeBase
	Code string
}

// Precedence ...
func (n *NodeBase) Precedence() int {
	return 0
}

// ToString ...
func (n *Include) ToString() string {
	if n.IsSystemPath {
		return "#include <" + n.Path + ">"
	}
	return "#include \"" + n.Path + "\""
}

// NewModule ...
func NewModule(name string) *Module {
	mod := &Module{Name: name}
	mod.AddInclude("stdint.h", true)
	return mod
}

// Implementation renders the C source of the module.
func (mod *Module) Implementation() string {
	str := ""
	if mod.Producer != "" {
		str += "#ident " + strconv.Quote(mod.Producer) + "\n"
	}
	str += "/* codegen unit " + mod.Name + " */\n"
	for _, inc := range mod.Includes {
		str += inc.ToString() + "\n"
	}
	str += "\n"

	// Declarations of functions and global variables
	for _, n := range mod.Externs {
		str += declaration(n) + ";\n"
	}
	for _, n := range mod.Elements {
		if d := declaration(n); d != "" {
			str += d + ";\n"
		}
	}
	str += "\n"

	// Definitions
	for _, n := range mod.Elements {
		str += n.ToString("") + "\n\n"
	}

	if mod.Main != nil {
		str += mod.Main.ToString("") + "\n"
	}
	return str
}

func declaration(n Node) string {
	switch n := n.(type) {
	case *Function:
		return n.Declaration("")
	case *GlobalVar:
		return n.Declaration("")
	}
	return ""
}

// HasInclude ...
func (mod *Module) HasInclude(path string) bool {
	for _, inc := range mod.Includes {
		if inc.Path == path {
			return true
		}
	}
	return false
}

// AddInclude ...
func (mod *Module) AddInclude(path string, isSystemPath bool) {
	if mod.HasInclude(path) {
		return
	}
	mod.Includes = append(mod.Includes, &Include{Path: path, IsSystemPath: isSystemPath})
}

// ToString ...
func (n *Function) ToString(indent string) string {
	str := indent
	if !n.IsExported {
		str += "static "
	}
	str += n.signature()
	str += " {\n"
	for _, b := range n.Body {
		str += b.ToString(indent+"    ") + ";\n"
	}
	return str + indent + "}"
}

func (n *Function) signature() string {
	str := n.ReturnType.ToString("") + " " + n.Name + "("
	for i, p := range n.Parameters {
		if i != 0 {
			str += ", "
		}
		str += p.ToString("")
	}
	if len(n.Parameters) == 0 && !n.IsExtern {
		str += "void"
	}
	return str + ")"
}

// Declaration ...
func (n *Function) Declaration(indent string) string {
	str := indent
	if n.IsExtern {
		str += "extern "
	} else if !n.IsExported {
		str += "static "
	}
	return str + n.signature()
}

// ToString ...
func (n *FunctionParameter) ToString(indent string) string {
	return n.Type.ToString("") + " " + n.Name
}

// NewTypeDecl ...
func NewTypeDecl(code string) *TypeDecl {
	return &TypeDecl{Code: code}
}

// ToString ...
func (n *TypeDecl) ToString(indent string) string {
	return indent + n.Code
}

// ToString ...
func (n *Return) ToString(indent string) string {
	if n.Expr != nil {
		return indent + "return " + n.Expr.ToString("")
	}
	return indent + "return"
}

// ToString ...
func (n *Unary) ToString(indent string) string {
	if n.Precedence() < n.Expr.Precedence() {
		return indent + n.Operator + "(" + n.Expr.ToString("") + ")"
	}
	return indent + n.Operator + n.Expr.ToString("")
}

// Precedence ...
func (n *Unary) Precedence() int {
	return 2
}

// ToString ...
func (n *Binary) ToString(indent string) string {
	str := indent
	if n.Precedence() < n.Left.Precedence() {
		str += "(" + n.Left.ToString("") + ")"
	} else {
		str += n.Left.ToString("")
	}
	str += " " + n.Operator + " "
	if n.Precedence() <= n.Right.Precedence() {
		str += "(" + n.Right.ToString("") + ")"
	} else {
		str += n.Right.ToString("")
	}
	return str
}

// Precedence ...
func (n *Binary) Precedence() int {
	switch n.Operator {
	case "*", "/", "%":
		return 3
	case "-", "+":
		return 4
	case "=":
		return 13
	}
	panic("Ooooops")
}

// ToString ...
func (n *FunctionCall) ToString(indent string) string {
	str := indent
	if n.Precedence() <= n.FuncExpr.Precedence() {
		str += "(" + n.FuncExpr.ToString("") + ")"
	} else {
		str += n.FuncExpr.ToString("")
	}
	str += "("
	for i, arg := range n.Args {
		if i > 0 {
			str += ", "
		}
		str += arg.ToString("")
	}
	str += ")"
	return str
}

// Precedence ...
func (n *FunctionCall) Precedence() int {
	return 1
}

// ToString ...
func (n *TypeCast) ToString(indent string) string {
	if n.Precedence() < n.Expr.Precedence() {
		return indent + "(" + n.Type.ToString("") + ")(" + n.Expr.ToString("") + ")"
	}
	return indent + "(" + n.Type.ToString("") + ")" + n.Expr.ToString("")
}

// Precedence ...
func (n *TypeCast) Precedence() int {
	return 2
}

// ToString ...
func (n *Var) ToString(indent string) string {
	str := indent + n.Type.ToString("") + " " + n.Name
	if n.InitExpr != nil {
		str += " = " + n.InitExpr.ToString("")
	}
	return str
}

// Declaration ...
func (n *GlobalVar) Declaration(indent string) string {
	str := indent
	if n.IsExtern {
		return str + "extern uint8_t " + n.Name + "[]"
	}
	if !n.IsExported {
		str += "static "
	}
	if n.IsConst {
		str += "const "
	}
	str += "uint8_t " + n.Name + "[" + strconv.Itoa(n.size()) + "]"
	if n.Align > 1 {
		str += " __attribute__((aligned(" + strconv.Itoa(n.Align) + ")))"
	}
	return str
}

func (n *GlobalVar) size() int {
	// C has no zero-length arrays.
	if len(n.Data) == 0 {
		return 1
	}
	return len(n.Data)
}

// ToString ...
func (n *GlobalVar) ToString(indent string) string {
	str := n.Declaration(indent) + " = {"
	if len(n.Data) == 0 {
		str += "0"
	}
	for i, b := range n.Data {
		if i != 0 {
			str += ", "
		}
		str += "0x" + strconv.FormatUint(uint64(b), 16)
	}
	return str + "};"
}

// ToString ...
func (n *Identifier) ToString(indent string) string {
	return indent + n.Name
}

// ToString ...
func (n *Constant) ToString(indent string) string {
	return indent + n.Code
}
