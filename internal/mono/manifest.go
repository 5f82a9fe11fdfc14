package mono

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The manifest is the YAML form of a partitioned program. It stands in for the
// front-end when the driver is run from the command line.

type manifest struct {
	Crate        string                           `yaml:"crate"`
	CrateTypes   []CrateType                      `yaml:"crate_types"`
	Main         string                           `yaml:"main"`
	Allocator    AllocatorKind                    `yaml:"allocator"`
	Metadata     string                           `yaml:"metadata"`
	Dependencies map[CrateType]map[string]Linkage `yaml:"dependencies"`
	Units        []manifestUnit                   `yaml:"units"`
}

type manifestUnit struct {
	Name    string         `yaml:"name"`
	Primary bool           `yaml:"primary"`
	Items   []manifestItem `yaml:"items"`
}

type manifestItem struct {
	Function string          `yaml:"function"`
	Params   []manifestParam `yaml:"params"`
	Result   string          `yaml:"result"`
	Body     []manifestInstr `yaml:"body"`
	Static   string          `yaml:"static"`
	Data     string          `yaml:"data"`
	Align    int             `yaml:"align"`
	Mutable  bool            `yaml:"mutable"`
	Local    bool            `yaml:"local"`
	Asm      string          `yaml:"asm"`
	Symbols  []string        `yaml:"symbols"`
}

type manifestParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type manifestInstr struct {
	Op     string `yaml:"op"`
	Dest   *int   `yaml:"dest"`
	Args   []int  `yaml:"args"`
	Value  int64  `yaml:"value"`
	Symbol string `yaml:"symbol"`
}

// LoadProgram reads a program manifest from a file.
func LoadProgram(path string) (*Program, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read program manifest %v", path)
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid program manifest %v", path)
	}
	return p, nil
}

// ParseProgram decodes and validates a program manifest.
func ParseProgram(data []byte) (*Program, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	p := &Program{
		CrateName:  m.Crate,
		CrateTypes: m.CrateTypes,
		MainSymbol: m.Main,
		Allocator:  m.Allocator,
		Metadata:   []byte(m.Metadata),
	}
	switch p.Allocator {
	case AllocatorNone, AllocatorDefault, AllocatorGlobal:
	default:
		return nil, fmt.Errorf("unknown allocator kind %q", p.Allocator)
	}
	if len(m.Dependencies) != 0 {
		p.Dependencies = make(map[CrateType]DependencyList)
		for ct, deps := range m.Dependencies {
			p.Dependencies[ct] = DependencyList(deps)
		}
	}
	for _, mu := range m.Units {
		u := &CompilationUnit{Name: mu.Name, Primary: mu.Primary}
		for _, mi := range mu.Items {
			item, err := mi.toItem()
			if err != nil {
				return nil, errors.Wrapf(err, "codegen unit %v", mu.Name)
			}
			u.Items = append(u.Items, item)
		}
		p.Units = append(p.Units, u)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (mi *manifestItem) toItem() (Item, error) {
	switch {
	case mi.Function != "":
		f := &Function{Symbol: mi.Function, Local: mi.Local}
		var err error
		if f.Result, err = parseType(mi.Result); err != nil {
			return nil, err
		}
		for _, mp := range mi.Params {
			t, err := parseType(mp.Type)
			if err != nil {
				return nil, err
			}
			f.Params = append(f.Params, Param{Name: mp.Name, Type: t})
		}
		for _, mins := range mi.Body {
			op, err := ParseOp(mins.Op)
			if err != nil {
				return nil, errors.Wrapf(err, "function %v", f.Symbol)
			}
			instr := Instr{Op: op, Dest: -1, Args: mins.Args, Value: mins.Value, Symbol: mins.Symbol}
			if mins.Dest != nil {
				instr.Dest = *mins.Dest
			}
			f.Body = append(f.Body, instr)
		}
		return f, nil
	case mi.Static != "":
		return &Static{Symbol: mi.Static, Data: []byte(mi.Data), Align: mi.Align, Mutable: mi.Mutable, Local: mi.Local}, nil
	case mi.Asm != "":
		return &GlobalAsm{Template: mi.Asm, Symbols: mi.Symbols}, nil
	}
	return nil, fmt.Errorf("item is neither a function, a static nor global asm")
}

func parseType(name string) (Type, error) {
	switch name {
	case "", "void":
		return TypeVoid, nil
	case "i32":
		return TypeI32, nil
	case "i64":
		return TypeI64, nil
	case "ptr":
		return TypePtr, nil
	}
	return TypeVoid, fmt.Errorf("unknown type %q", name)
}
