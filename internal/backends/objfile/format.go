package objfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic starts every object file.
var Magic = [4]byte{'F', 'Y', 'O', 'B'}

const formatVersion uint16 = 1

// Section ...
type Section struct {
	Name string
	Data []byte
}

// File is a decoded object file.
type File struct {
	Sections []Section
}

// Section returns the data of the named section.
func (f *File) Section(name string) ([]byte, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s.Data, true
		}
	}
	return nil, false
}

// Encode serializes the sections in their order.
func (f *File) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	binary.Write(&buf, binary.LittleEndian, formatVersion)
	binary.Write(&buf, binary.LittleEndian, uint32(len(f.Sections)))
	for _, s := range f.Sections {
		writeBytes(&buf, []byte(s.Name))
		writeBytes(&buf, s.Data)
	}
	return buf.Bytes()
}

// Decode parses an object file.
func Decode(data []byte) (*File, error) {
	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != Magic {
		return nil, errors.New("not a fyr object file")
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, errors.Errorf("unsupported object file version %d", version)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	f := &File{}
	for i := uint32(0); i < count; i++ {
		name, err := readBytes(r)
		if err != nil {
			return nil, errors.Wrapf(err, "section %d", i)
		}
		data, err := readBytes(r)
		if err != nil {
			return nil, errors.Wrapf(err, "section %s", name)
		}
		f.Sections = append(f.Sections, Section{Name: string(name), Data: data})
	}
	return f, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	_, err := io.ReadFull(r, b)
	return b, err
}

// SymbolBinding ...
type SymbolBinding uint8

const (
	// BindGlobal ...
	BindGlobal SymbolBinding = iota
	// BindLocal ...
	BindLocal
	// BindUndefined marks a symbol referenced but not defined by the object.
	BindUndefined
)

// Symbol is an entry of the `.symtab` section.
type Symbol struct {
	Name    string
	Binding SymbolBinding
	// Section is empty for undefined symbols.
	Section string
	Offset  uint32
	Size    uint32
}

// EncodeSymbols ...
func EncodeSymbols(symbols []Symbol) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(symbols)))
	for _, s := range symbols {
		writeBytes(&buf, []byte(s.Name))
		buf.WriteByte(byte(s.Binding))
		writeBytes(&buf, []byte(s.Section))
		binary.Write(&buf, binary.LittleEndian, s.Offset)
		binary.Write(&buf, binary.LittleEndian, s.Size)
	}
	return buf.Bytes()
}

// DecodeSymbols ...
func DecodeSymbols(data []byte) ([]Symbol, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	var symbols []Symbol
	for i := uint32(0); i < count; i++ {
		name, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		binding, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		section, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		s := Symbol{Name: string(name), Binding: SymbolBinding(binding), Section: string(section)}
		if err := binary.Read(r, binary.LittleEndian, &s.Offset); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &s.Size); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, nil
}
