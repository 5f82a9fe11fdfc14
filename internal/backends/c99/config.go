package c99

import (
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Config contains the complete configuration of the c99 backend.
	Config struct {
		Compiler  *CompilerConf
		Assembler *AssemblerConf
	}

	// CompilerConf contains the configuration of the c99 compiler.
	CompilerConf struct {
		Bin           string
		RequiredFlags string
		DebugFlags    string
		ReleaseFlags  string
	}

	// AssemblerConf contains the configuration of the assembler used for global asm.
	// An empty Bin runs the compiler in assembler mode.
	AssemblerConf struct {
		Bin   string
		Flags string
	}
)

// Name prints the name of the backend.
func (c *Config) Name() string {
	return "c99"
}

// Default configures the backend with the default values.
func (c *Config) Default() {
	c.Compiler = &CompilerConf{Bin: "gcc", RequiredFlags: "-std=c99 -D_FORTIFY_SOURCE=0", DebugFlags: "-g", ReleaseFlags: "-O2"}
	c.Assembler = &AssemblerConf{}
}

// CheckConfig checks the validity of the loaded configuration and returns warnings and errors.
func (c *Config) CheckConfig() (warnings []string, err error) {
	if c.Compiler == nil || c.Compiler.Bin == "" {
		return nil, errors.New("no C compiler configured")
	}
	if c.Assembler == nil {
		c.Assembler = &AssemblerConf{}
	}
	if c.isGccOrClang() && !strings.Contains(c.Compiler.RequiredFlags, "-D_FORTIFY_SOURCE=0") {
		warnings = append(warnings, "GCC and Clang should be run with -D_FORTIFY_SOURCE=0!")
	}
	return
}

func (c *Config) isGccOrClang() bool {
	if strings.Contains(c.Compiler.Bin, "gcc") || strings.Contains(c.Compiler.Bin, "clang") {
		return true
	}
	return false
}

// getConfigName tries to automatically determine the correct configuration for a given compiler.
// Only works with gcc/clang.
func getConfigName(compilerPath string) (string, error) {
	compilerBinary := filepath.Base(compilerPath)
	if !strings.Contains(compilerBinary, "gcc") && !strings.Contains(compilerBinary, "clang") {
		return "", errors.New("autodetection of architecture configuration only works with gcc or clang")
	}
	res, err := exec.Command(compilerPath, "-dumpmachine").Output()
	if err != nil {
		return "", errors.Wrapf(err, "failed to run %v -dumpmachine", compilerPath)
	}
	project, err := getCompilerProject(compilerPath)
	if err != nil {
		return "", err
	}
	triplet := strings.Trim(string(res), "\t\n ")
	return triplet + "-" + project + ".json", nil
}

func getCompilerProject(compilerPath string) (string, error) {
	compilerBinary := filepath.Base(compilerPath)
	if strings.Contains(compilerBinary, "gcc") {
		return "gcc", nil
	} else if strings.Contains(compilerBinary, "clang") {
		return "clang", nil
	}
	return "", errors.Errorf("unable to match the compiler %v to a project (gcc/clang)", compilerPath)
}

func splitFlags(flags string) []string {
	return strings.Fields(flags)
}
