package session

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// OutputType is a kind of artifact the user can ask for with `--emit`.
type OutputType int

const (
	// OutputObject ...
	OutputObject OutputType = iota
	// OutputAssembly ...
	OutputAssembly
	// OutputIR is the backend's textual intermediate representation.
	OutputIR
	// OutputBitcode ...
	OutputBitcode
	// OutputMetadata ...
	OutputMetadata
	// OutputExe is the linked executable. Linking itself happens downstream.
	OutputExe
	// OutputDepInfo ...
	OutputDepInfo
)

var outputTypes = []struct {
	shorthand string
	extension string
}{
	OutputObject:   {"obj", "o"},
	OutputAssembly: {"asm", "s"},
	OutputIR:       {"ir", "ir"},
	OutputBitcode:  {"bc", "bc"},
	OutputMetadata: {"metadata", "fmeta"},
	OutputExe:      {"link", ""},
	OutputDepInfo:  {"dep-info", "d"},
}

// Shorthand is the name used on the command line.
func (t OutputType) Shorthand() string {
	return outputTypes[t].shorthand
}

// Extension ...
func (t OutputType) Extension() string {
	return outputTypes[t].extension
}

// IsTextOutput reports whether the output may be written to a terminal.
func (t OutputType) IsTextOutput() bool {
	switch t {
	case OutputAssembly, OutputIR, OutputDepInfo:
		return true
	}
	return false
}

// String ...
func (t OutputType) String() string {
	return t.Shorthand()
}

// ParseOutputType ...
func ParseOutputType(shorthand string) (OutputType, error) {
	for i, o := range outputTypes {
		if o.shorthand == shorthand {
			return OutputType(i), nil
		}
	}
	var known []string
	for _, o := range outputTypes {
		known = append(known, o.shorthand)
	}
	return 0, errors.Errorf("unknown emit type %q, expected one of %v", shorthand, strings.Join(known, ", "))
}

// OutFileName is either a path or the standard output stream.
type OutFileName struct {
	Stdout bool
	Path   string
}

// String ...
func (o OutFileName) String() string {
	if o.Stdout {
		return "<stdout>"
	}
	return o.Path
}

func newOutFileName(path string) *OutFileName {
	if path == "-" {
		return &OutFileName{Stdout: true}
	}
	return &OutFileName{Path: path}
}

// OutputFilenames decides where every requested output and every temporary goes.
type OutputFilenames struct {
	OutDir string
	Stem   string
	// SingleOutputFile is the `-o` path when exactly one output type was requested.
	SingleOutputFile *OutFileName
	// outputs maps each requested type to its explicit path, or nil.
	outputs map[OutputType]*OutFileName
}

// NewOutputFilenames builds the output configuration from `--out-dir`, `-o` and the `--emit` requests.
// An `--emit` request has the form `kind` or `kind=path`. Without any request the executable is produced.
func NewOutputFilenames(outDir, stem, outputFile string, emit []string) (*OutputFilenames, error) {
	outputs, err := ParseEmit(emit)
	if err != nil {
		return nil, err
	}
	o := &OutputFilenames{OutDir: outDir, Stem: stem, outputs: outputs}
	if outputFile != "" {
		if len(outputs) == 1 {
			o.SingleOutputFile = newOutFileName(outputFile)
		} else if outputFile != "-" {
			// Several outputs share the stem and directory of `-o`.
			o.OutDir = filepath.Dir(outputFile)
			base := filepath.Base(outputFile)
			o.Stem = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return o, nil
}

// ParseEmit ...
func ParseEmit(emit []string) (map[OutputType]*OutFileName, error) {
	outputs := make(map[OutputType]*OutFileName)
	for _, e := range emit {
		for _, part := range strings.Split(e, ",") {
			if part == "" {
				continue
			}
			kind, path := part, ""
			if i := strings.IndexByte(part, '='); i >= 0 {
				kind, path = part[:i], part[i+1:]
				if path == "" {
					return nil, errors.Errorf("empty path in emit request %q", part)
				}
			}
			t, err := ParseOutputType(kind)
			if err != nil {
				return nil, err
			}
			if path != "" {
				outputs[t] = newOutFileName(path)
			} else if _, ok := outputs[t]; !ok {
				outputs[t] = nil
			}
		}
	}
	if len(outputs) == 0 {
		outputs[OutputExe] = nil
	}
	return outputs, nil
}

// Contains ...
func (o *OutputFilenames) Contains(t OutputType) bool {
	_, ok := o.outputs[t]
	return ok
}

// ContainsExplicitName reports whether the user gave a path for this output with `--emit kind=path`.
func (o *OutputFilenames) ContainsExplicitName(t OutputType) bool {
	return o.outputs[t] != nil
}

// Types returns the requested output types in a stable order.
func (o *OutputFilenames) Types() []OutputType {
	var types []OutputType
	for t := range o.outputs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Path returns the final location of an output.
func (o *OutputFilenames) Path(t OutputType) OutFileName {
	if p := o.outputs[t]; p != nil {
		return *p
	}
	if o.SingleOutputFile != nil {
		return *o.SingleOutputFile
	}
	return OutFileName{Path: o.withExtension(t.Extension())}
}

// TempPath returns the per-module temporary file of an output.
// The module name is left out when it is empty.
func (o *OutputFilenames) TempPath(t OutputType, module string) string {
	return o.TempPathExt(t.Extension(), module)
}

// TempPathExt is TempPath for artifacts that have no output type, such as split debug info.
func (o *OutputFilenames) TempPathExt(ext, module string) string {
	name := o.Stem
	if module != "" {
		name += "." + module
	}
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(o.OutDir, name)
}

func (o *OutputFilenames) withExtension(ext string) string {
	if ext == "" {
		return filepath.Join(o.OutDir, o.Stem)
	}
	return filepath.Join(o.OutDir, o.Stem+"."+ext)
}

// ShouldCodegen reports whether any requested output needs compiled code.
func (o *OutputFilenames) ShouldCodegen() bool {
	for t := range o.outputs {
		if t != OutputMetadata && t != OutputDepInfo {
			return true
		}
	}
	return false
}
