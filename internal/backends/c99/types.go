package c99

import "github.com/vs-ude/fyrbuild/internal/mono"

// Registers are 64 bit wide, values are converted at parameter, call and return boundaries.
var registerType = NewTypeDecl("int64_t")

func mapType(t mono.Type) *TypeDecl {
	switch t {
	case mono.TypeVoid:
		return NewTypeDecl("void")
	case mono.TypeI32:
		return NewTypeDecl("int32_t")
	case mono.TypeI64:
		return NewTypeDecl("int64_t")
	case mono.TypePtr:
		return NewTypeDecl("void*")
	}
	panic("Oooops")
}

// convert casts a register to `t`. Pointers go through intptr_t.
func convert(expr Node, t mono.Type) Node {
	switch t {
	case mono.TypePtr:
		return &TypeCast{Type: NewTypeDecl("void*"), Expr: &TypeCast{Type: NewTypeDecl("intptr_t"), Expr: expr}}
	case mono.TypeI64:
		return expr
	}
	return &TypeCast{Type: mapType(t), Expr: expr}
}

// toRegister casts a value of type `t` to a register.
func toRegister(expr Node, t mono.Type) Node {
	switch t {
	case mono.TypePtr:
		return &TypeCast{Type: registerType, Expr: &TypeCast{Type: NewTypeDecl("intptr_t"), Expr: expr}}
	case mono.TypeI64:
		return expr
	}
	return &TypeCast{Type: registerType, Expr: expr}
}
