package mono

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Fingerprint is the hex encoded dependency hash of a codegen unit.
type Fingerprint string

// FingerprintUnit hashes everything that determines the object file of a unit.
// The salt carries the codegen options that influence the emitted bytes.
func FingerprintUnit(u *CompilationUnit, salt string) Fingerprint {
	e := &encoder{h: sha256.New()}
	e.str(salt)
	e.str(u.Name)
	e.bool(u.Primary)
	for _, item := range u.ItemsInDeterministicOrder() {
		e.int(int64(item.Kind()))
		switch item := item.(type) {
		case *Function:
			e.str(item.Symbol)
			e.bool(item.Local)
			e.int(int64(item.Result))
			e.int(int64(len(item.Params)))
			for _, p := range item.Params {
				e.str(p.Name)
				e.int(int64(p.Type))
			}
			e.int(int64(len(item.Body)))
			for _, instr := range item.Body {
				e.int(int64(instr.Op))
				e.int(int64(instr.Dest))
				e.int(instr.Value)
				e.str(instr.Symbol)
				e.int(int64(len(instr.Args)))
				for _, a := range instr.Args {
					e.int(int64(a))
				}
			}
		case *Static:
			e.str(item.Symbol)
			e.bytes(item.Data)
			e.int(int64(item.Align))
			e.bool(item.Mutable)
			e.bool(item.Local)
		case *GlobalAsm:
			e.str(item.Template)
			e.int(int64(len(item.Symbols)))
			for _, s := range item.Symbols {
				e.str(s)
			}
		}
	}
	return Fingerprint(hex.EncodeToString(e.h.Sum(nil)))
}

type encoder struct {
	h   hash.Hash
	buf [binary.MaxVarintLen64]byte
}

func (e *encoder) int(v int64) {
	n := binary.PutVarint(e.buf[:], v)
	e.h.Write(e.buf[:n])
}

func (e *encoder) bool(b bool) {
	if b {
		e.int(1)
	} else {
		e.int(0)
	}
}

func (e *encoder) bytes(b []byte) {
	e.int(int64(len(b)))
	e.h.Write(b)
}

func (e *encoder) str(s string) {
	e.bytes([]byte(s))
}
