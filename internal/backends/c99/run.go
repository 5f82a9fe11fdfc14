package c99

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/config"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// Backend This backend implements compilation to native objects via C99 code.
type Backend struct {
	config      Config
	targetFlags []string
	asmFlags    []string
}

// NewBackend constructs the backend and its configuration according to the options and the build target.
func NewBackend(c *config.Config) (*Backend, error) {
	b := &Backend{
		config: Config{},
	}
	compilerPath := ""
	if c.Target != nil && c.Target.C99 != nil && c.Target.C99.Compiler != nil {
		compilerPath = c.Target.C99.Compiler.Command
	}
	compilerConfigPath := c.Options.BackendConfig
	if compilerPath != "" && compilerConfigPath != "" {
		if err := backend.LoadConfig(compilerConfigPath, &b.config, c); err != nil {
			return nil, err
		}
		b.config.Compiler.Bin = compilerPath
		glog.Warning("Incorrect configuration of the compiler could lead to undefined behavior and issues.")
	} else if compilerPath != "" && compilerConfigPath == "" {
		p, err := getConfigName(compilerPath)
		if err != nil {
			return nil, err
		}
		if err := backend.LoadConfig(p, &b.config, c); err != nil {
			glog.V(1).Infof("No configuration for %v (%v), using the defaults", compilerPath, err)
			b.config.Default()
		}
		b.config.Compiler.Bin = compilerPath
	} else if compilerPath == "" && compilerConfigPath != "" {
		if err := backend.LoadConfig(compilerConfigPath, &b.config, c); err != nil {
			return nil, err
		}
	} else {
		b.config.Default()
	}
	if c.Target != nil && c.Target.C99 != nil {
		if c.Target.C99.Compiler != nil {
			b.targetFlags = c.Target.C99.Compiler.Flags
		}
		if a := c.Target.C99.Assembler; a != nil {
			if a.Command != "" {
				asm := &AssemblerConf{Bin: a.Command}
				if b.config.Assembler != nil {
					asm.Flags = b.config.Assembler.Flags
				}
				b.config.Assembler = asm
			}
			b.asmFlags = a.Flags
		}
	}
	if b.config.Assembler == nil {
		b.config.Assembler = &AssemblerConf{}
	}
	glog.V(3).Infof("c99 backend uses %v %v", b.config.Compiler.Bin, strings.Join(b.targetFlags, " "))
	return b, nil
}

// Name ...
func (b *Backend) Name() string {
	return "c99"
}

// SupportedOutputs ...
func (b *Backend) SupportedOutputs() []session.OutputType {
	return []session.OutputType{session.OutputAssembly, session.OutputIR}
}

// NewObject ...
func (b *Backend) NewObject(unitName string, opts backend.ObjectOptions) (backend.Object, error) {
	return newObject(b, filepath.Base(unitName), opts), nil
}

// Salt digests the resolved compiler and assembler configuration together with the target flags.
func (b *Backend) Salt() string {
	data, err := json.Marshal(struct {
		Config      Config
		TargetFlags []string
		AsmFlags    []string
	}{b.config, b.targetFlags, b.asmFlags})
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PrintCurrentConfig prints the configuration of the backend.
func (b *Backend) PrintCurrentConfig(w io.Writer) {
	backend.PrintConfig(w, &b.config)
}
