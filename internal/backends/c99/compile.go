package c99

import (
	"bytes"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/vs-ude/fyrbuild/internal/backends/backend"
	"github.com/vs-ude/fyrbuild/internal/session"
)

// FinishObject writes the C source of the unit and compiles it.
func (o *object) FinishObject(path string, info backend.FinishInfo) error {
	o.mod.Producer = info.Producer
	src := o.mod.Implementation()
	if irPath, ok := info.Emit[session.OutputIR]; ok {
		if err := ioutil.WriteFile(irPath, []byte(src), 0o644); err != nil {
			return err
		}
	}
	srcPath := sourcePath(path, ".c")
	if err := ioutil.WriteFile(srcPath, []byte(src), 0o644); err != nil {
		return err
	}
	defer os.Remove(srcPath)

	args := o.backend.compilationArgs(o.opts, info)
	if err := o.backend.run(o.backend.config.Compiler.Bin, append(args, "-c", srcPath, "-o", path)); err != nil {
		return err
	}
	if asmPath, ok := info.Emit[session.OutputAssembly]; ok {
		if err := o.backend.run(o.backend.config.Compiler.Bin, append(args, "-S", srcPath, "-o", asmPath)); err != nil {
			return err
		}
	}
	return nil
}

// FinishGlobalAsm assembles the global asm blocks of the unit.
func (o *object) FinishGlobalAsm(path string) (bool, error) {
	if len(o.asm) == 0 {
		return false, nil
	}
	var text []string
	for _, a := range o.asm {
		s, err := a.Render()
		if err != nil {
			return false, err
		}
		text = append(text, s)
	}
	srcPath := sourcePath(path, ".s")
	if err := ioutil.WriteFile(srcPath, []byte(strings.Join(text, "\n")+"\n"), 0o644); err != nil {
		return false, err
	}
	defer os.Remove(srcPath)

	conf := o.backend.config.Assembler
	if conf != nil && conf.Bin != "" {
		args := append(splitFlags(conf.Flags), o.backend.asmFlags...)
		return true, o.backend.run(conf.Bin, append(args, "-o", path, srcPath))
	}
	args := append(splitFlags(o.backend.config.Compiler.RequiredFlags), o.backend.asmFlags...)
	return true, o.backend.run(o.backend.config.Compiler.Bin, append(args, "-c", "-x", "assembler", srcPath, "-o", path))
}

func sourcePath(objectPath, ext string) string {
	return strings.TrimSuffix(objectPath, ".o") + ext
}

func (b *Backend) compilationArgs(opts backend.ObjectOptions, info backend.FinishInfo) []string {
	args := splitFlags(b.config.Compiler.RequiredFlags)
	if info.DebugInfo {
		args = append(args, splitFlags(b.config.Compiler.DebugFlags)...)
	} else {
		args = append(args, splitFlags(b.config.Compiler.ReleaseFlags)...)
	}
	if info.UnwindTables {
		args = append(args, "-fasynchronous-unwind-tables")
	} else {
		args = append(args, "-fno-asynchronous-unwind-tables")
	}
	if opts.FunctionSections {
		args = append(args, "-ffunction-sections", "-fdata-sections")
	}
	if opts.TargetCPU != "" {
		args = append(args, "-march="+opts.TargetCPU)
	}
	return append(args, b.targetFlags...)
}

func (b *Backend) run(bin string, args []string) error {
	cmd := exec.Command(bin, args...)
	var output bytes.Buffer
	cmd.Stdout, cmd.Stderr = &output, &output
	glog.V(3).Info(cmd.String())
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%v failed:\n%s", bin, output.String())
	}
	return nil
}
